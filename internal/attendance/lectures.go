package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qrattend/internal/auth"
)

// DefaultRetentionDays is how old a lecture gets before the retention job archives it.
const DefaultRetentionDays = 1825

// ScheduleLecture creates a lecture for a subject taught by actor.
// at is a wall clock time formatted as 15:04.
func (s *Service) ScheduleLecture(ctx context.Context, actor auth.Actor, subjectID string, date time.Time, at string) (Lecture, error) {
	sub, err := s.ownedSubject(ctx, actor, subjectID)
	if err != nil {
		return Lecture{}, err
	}
	if date.IsZero() {
		return Lecture{}, invalid("Lecture date is required")
	}
	if _, err := time.Parse("15:04", at); err != nil {
		return Lecture{}, invalid("Lecture time must be formatted as HH:MM")
	}
	return s.store.CreateLecture(ctx, Lecture{
		ID:        uuid.NewString(),
		SubjectID: sub.ID,
		Date:      dateOf(date),
		Time:      at,
		CreatedAt: s.now(),
	})
}

// ListLectures returns the subject's lectures that are not archived.
func (s *Service) ListLectures(ctx context.Context, actor auth.Actor, subjectID string) ([]Lecture, error) {
	sub, err := s.ownedSubject(ctx, actor, subjectID)
	if err != nil {
		return nil, err
	}
	return s.store.ListLectures(ctx, sub.ID, false)
}

// ArchiveLectures hides the teacher's lectures older than days. Nothing is deleted.
func (s *Service) ArchiveLectures(ctx context.Context, actor auth.Actor, days int) (int64, error) {
	switch actor.Role {
	case auth.RoleTeacher:
	case auth.RoleStudent, auth.RoleAdmin:
		return 0, forbidden("Only teachers can archive lectures")
	default:
		return 0, forbidden("Unknown role")
	}
	if days <= 0 {
		return 0, invalid("days must be positive")
	}
	cutoff := s.today().AddDate(0, 0, -days)
	n, err := s.store.ArchiveLectures(ctx, actor.ID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive lectures: %w", err)
	}
	s.logger.Info("lectures archived",
		zap.String("teacher_id", actor.ID),
		zap.Time("cutoff", cutoff),
		zap.Int64("count", n),
	)
	return n, nil
}

// RollCallEntry is one rostered student's outcome for a lecture.
type RollCallEntry struct {
	Student User
	Lecture Lecture
	Subject Subject
	Present bool
}

// RollCall lists every rostered student of the lectures held on day, marked
// present when their claim was approved. A zero day means today.
// Lectures without an issued QR code took no attendance and are left out.
func (s *Service) RollCall(ctx context.Context, day time.Time) ([]RollCallEntry, error) {
	if day.IsZero() {
		day = s.today()
	}
	lectures, err := s.store.LecturesOn(ctx, dateOf(day))
	if err != nil {
		return nil, fmt.Errorf("roll call lectures: %w", err)
	}
	var out []RollCallEntry
	for _, l := range lectures {
		sub, err := s.store.GetSubject(ctx, l.SubjectID)
		if err != nil {
			return nil, err
		}
		roster, err := s.store.Roster(ctx, sub.ClassID)
		if err != nil {
			return nil, err
		}
		approved, err := s.store.ListAttendance(ctx, AttendanceFilter{LectureID: l.ID, Status: StatusApproved})
		if err != nil {
			return nil, err
		}
		present := make(map[string]bool, len(approved))
		for _, a := range approved {
			present[a.StudentID] = true
		}
		for _, u := range roster {
			out = append(out, RollCallEntry{Student: u, Lecture: l, Subject: sub, Present: present[u.ID]})
		}
	}
	return out, nil
}

// Enroll adds the calling student to a class roster.
func (s *Service) Enroll(ctx context.Context, actor auth.Actor, classID string) (Class, error) {
	class, err := s.rosterTarget(ctx, actor, classID)
	if err != nil {
		return Class{}, err
	}
	return class, s.store.Enroll(ctx, class.ID, actor.ID)
}

// Unenroll removes the calling student from a class roster.
func (s *Service) Unenroll(ctx context.Context, actor auth.Actor, classID string) (Class, error) {
	class, err := s.rosterTarget(ctx, actor, classID)
	if err != nil {
		return Class{}, err
	}
	return class, s.store.Unenroll(ctx, class.ID, actor.ID)
}

func (s *Service) rosterTarget(ctx context.Context, actor auth.Actor, classID string) (Class, error) {
	switch actor.Role {
	case auth.RoleStudent:
	case auth.RoleTeacher, auth.RoleAdmin:
		return Class{}, forbidden("Only students can change their enrolment")
	default:
		return Class{}, forbidden("Unknown role")
	}
	return s.store.GetClass(ctx, classID)
}

// ActiveSession resolves the current academic session; nil means none is active.
func (s *Service) ActiveSession(ctx context.Context) (*Session, error) {
	return s.store.ActiveSession(ctx)
}

// Authenticate checks credentials and returns the matching active user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	if email == "" || password == "" {
		return User{}, invalid("Email and password are required")
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return User{}, newError(ErrUnauthenticated, "Invalid email or password")
	}
	if err != nil {
		return User{}, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return User{}, newError(ErrUnauthenticated, "Invalid email or password")
	}
	if !u.Active {
		return User{}, newError(ErrUnauthenticated, "Account is not active")
	}
	return u, nil
}

// ClaimContext is everything needed to describe a claim to its student.
type ClaimContext struct {
	Attendance Attendance
	Student    User
	Lecture    Lecture
	Subject    Subject
	Class      Class
	Course     Course
}

// LoadClaimContext resolves the rows around an attendance claim.
func (s *Service) LoadClaimContext(ctx context.Context, attendanceID string) (ClaimContext, error) {
	var cc ClaimContext
	var err error
	if cc.Attendance, err = s.store.GetAttendance(ctx, attendanceID); err != nil {
		return cc, err
	}
	if cc.Student, err = s.store.GetUser(ctx, cc.Attendance.StudentID); err != nil {
		return cc, err
	}
	if cc.Lecture, err = s.store.GetLecture(ctx, cc.Attendance.LectureID); err != nil {
		return cc, err
	}
	if cc.Subject, err = s.store.GetSubject(ctx, cc.Lecture.SubjectID); err != nil {
		return cc, err
	}
	if cc.Class, err = s.store.GetClass(ctx, cc.Subject.ClassID); err != nil {
		return cc, err
	}
	if cc.Course, err = s.store.GetCourse(ctx, cc.Class.CourseID); err != nil {
		return cc, err
	}
	return cc, nil
}
