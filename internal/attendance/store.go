package attendance

import (
	"context"
	"time"
)

// Store is the entity store the service runs against.
// Lookups of missing rows return an error wrapping ErrNotFound.
type Store interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	GetClass(ctx context.Context, id string) (Class, error)
	GetSubject(ctx context.Context, id string) (Subject, error)
	GetLecture(ctx context.Context, id string) (Lecture, error)
	ActiveSession(ctx context.Context) (*Session, error)

	IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
	Roster(ctx context.Context, classID string) ([]User, error)
	Enroll(ctx context.Context, classID, studentID string) error
	Unenroll(ctx context.Context, classID, studentID string) error
	StudentSubjects(ctx context.Context, studentID, sessionID string) ([]Subject, error)
	TeacherSubjects(ctx context.Context, teacherID, sessionID string) ([]Subject, error)

	CreateLecture(ctx context.Context, l Lecture) (Lecture, error)
	ListLectures(ctx context.Context, subjectID string, includeArchived bool) ([]Lecture, error)
	CountLectures(ctx context.Context, subjectID string) (int, error)
	// LecturesOn returns the unarchived lectures dated day that had a QR code issued.
	LecturesOn(ctx context.Context, day time.Time) ([]Lecture, error)
	// ArchiveLectures flags the teacher's lectures dated before cutoff and returns how many changed.
	ArchiveLectures(ctx context.Context, teacherID string, cutoff time.Time) (int64, error)

	// ActiveQRCode returns the lecture's token with the latest expiry after now, or nil.
	ActiveQRCode(ctx context.Context, lectureID string, now time.Time) (*QRCode, error)
	CreateQRCode(ctx context.Context, qr QRCode) (QRCode, error)
	GetQRCodeByToken(ctx context.Context, token string) (QRCode, error)

	// GetOrCreateAttendance inserts a unless a row for (StudentID, LectureID) exists,
	// in one atomic step, and returns the stored row and whether it was created.
	GetOrCreateAttendance(ctx context.Context, a Attendance) (Attendance, bool, error)
	GetAttendance(ctx context.Context, id string) (Attendance, error)
	SetAttendanceStatus(ctx context.Context, id string, status Status, reason string, at time.Time) (Attendance, error)
	// ApprovePending approves every pending row of the lecture and returns the changed rows.
	ApprovePending(ctx context.Context, lectureID string, at time.Time) ([]Attendance, error)
	ListAttendance(ctx context.Context, f AttendanceFilter) ([]Attendance, error)
	CountApproved(ctx context.Context, subjectID, studentID string) (int, error)
}
