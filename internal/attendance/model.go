package attendance

import (
	"time"

	"qrattend/internal/auth"
)

// Status is the approval state of an attendance claim.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid returns true when the status is a supported value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a teacher may move a claim from one status to another.
//
// Approved and rejected can be reached from every status, including approved to
// rejected, which is a teacher override. Nothing goes back to pending.
func CanTransition(from, to Status) bool {
	if !from.Valid() {
		return false
	}
	switch to {
	case StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// DefaultRejectReason is stored when a teacher rejects without a reason.
const DefaultRejectReason = "No reason provided"

// User is an account of any role.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type Course struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is an academic session; at most one is active.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Active    bool      `json:"is_active"`
}

// Class belongs to a course and a session and has a student roster.
type Class struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CourseID  string `json:"course_id"`
	SessionID string `json:"session_id"`
}

// Subject is taught to one class by its owning teacher.
type Subject struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClassID   string `json:"class_id"`
	TeacherID string `json:"teacher_id"`
}

type Lecture struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Date      time.Time `json:"date"`
	Time      string    `json:"time"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

// QRCode is a time-boxed token; LectureID is nil for tokens not bound to a lecture.
type QRCode struct {
	ID        string    `json:"id"`
	LectureID *string   `json:"lecture_id"`
	Token     string    `json:"qr_code_data"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Attendance is one student's claim for one lecture.
type Attendance struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	LectureID   string    `json:"lecture_id"`
	SubjectID   string    `json:"subject_id"`
	LectureDate time.Time `json:"lecture_date"`
	Status      Status    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AttendanceFilter narrows ListAttendance; zero fields are ignored.
type AttendanceFilter struct {
	StudentID string
	LectureID string
	SubjectID string
	Status    Status
	From      *time.Time
	To        *time.Time
}

// dateOf truncates t to its calendar day in t's location, expressed in UTC.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
