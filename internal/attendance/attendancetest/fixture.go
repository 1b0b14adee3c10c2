package attendancetest

import (
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
)

// Fixture ids.
const (
	TeacherID      = "teacher-1"
	OtherTeacherID = "teacher-2"
	AdminID        = "admin-1"
	AliceID        = "student-alice"
	BobID          = "student-bob"
	CarolID        = "student-carol"

	CourseID  = "course-1"
	SessionID = "session-1"
	ClassID   = "class-1"
	SubjectID = "subject-1"
	LectureID = "lecture-1"

	// Password is the plaintext password of every fixture user.
	Password = "secret-pass"
)

// Actor builds an actor for one of the fixture users.
func Actor(id string, role auth.Role) auth.Actor {
	return auth.Actor{ID: id, Role: role}
}

// Seed fills s with one active session, one class with Alice and Bob on the
// roster, one subject taught by TeacherID and one lecture dated on day.
// Carol is a student outside the class.
func Seed(s *Store, day time.Time) {
	hash, err := auth.HashPassword(Password)
	if err != nil {
		panic(err)
	}
	created := day.Add(-24 * time.Hour)
	for _, u := range []attendance.User{
		{ID: TeacherID, Name: "Ada Lovelace", Email: "ada@school.test", Role: auth.RoleTeacher},
		{ID: OtherTeacherID, Name: "Grace Hopper", Email: "grace@school.test", Role: auth.RoleTeacher},
		{ID: AdminID, Name: "Root", Email: "root@school.test", Role: auth.RoleAdmin},
		{ID: AliceID, Name: "Alice", Email: "alice@school.test", Role: auth.RoleStudent},
		{ID: BobID, Name: "Bob", Email: "bob@school.test", Role: auth.RoleStudent},
		{ID: CarolID, Name: "Carol", Email: "carol@school.test", Role: auth.RoleStudent},
	} {
		u.PasswordHash = hash
		u.Active = true
		u.CreatedAt = created
		s.PutUser(u)
	}

	y, m, d := day.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	s.PutCourse(attendance.Course{ID: CourseID, Name: "Computer Science"})
	s.PutSession(attendance.Session{
		ID:        SessionID,
		Name:      "2026/27",
		StartDate: date.AddDate(0, -1, 0),
		EndDate:   date.AddDate(0, 8, 0),
		Active:    true,
	})
	s.PutClass(attendance.Class{ID: ClassID, Name: "CS-A", CourseID: CourseID, SessionID: SessionID})
	s.PutSubject(attendance.Subject{ID: SubjectID, Name: "Algorithms", ClassID: ClassID, TeacherID: TeacherID})
	s.PutLecture(attendance.Lecture{ID: LectureID, SubjectID: SubjectID, Date: date, Time: "09:00", CreatedAt: created})

	s.mu.Lock()
	s.roster[ClassID] = map[string]bool{AliceID: true, BobID: true}
	s.mu.Unlock()
}
