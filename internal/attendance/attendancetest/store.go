// Package attendancetest provides an in-memory attendance.Store for tests and local runs.
package attendancetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"qrattend/internal/attendance"
)

// Store is a map-backed attendance.Store safe for concurrent use.
type Store struct {
	mu sync.Mutex

	users      map[string]attendance.User
	courses    map[string]attendance.Course
	sessions   map[string]attendance.Session
	classes    map[string]attendance.Class
	subjects   map[string]attendance.Subject
	lectures   map[string]attendance.Lecture
	qrcodes    map[string]attendance.QRCode
	attendance map[string]attendance.Attendance
	roster     map[string]map[string]bool
}

var _ attendance.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:      make(map[string]attendance.User),
		courses:    make(map[string]attendance.Course),
		sessions:   make(map[string]attendance.Session),
		classes:    make(map[string]attendance.Class),
		subjects:   make(map[string]attendance.Subject),
		lectures:   make(map[string]attendance.Lecture),
		qrcodes:    make(map[string]attendance.QRCode),
		attendance: make(map[string]attendance.Attendance),
		roster:     make(map[string]map[string]bool),
	}
}

func missing(what string) error {
	return &attendance.Error{Kind: attendance.ErrNotFound, Message: what + " not found"}
}

// -------- Seeding --------

func (s *Store) PutUser(u attendance.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) PutCourse(c attendance.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
}

// PutSession stores a session; an active one deactivates the others.
func (s *Store) PutSession(sess attendance.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.Active {
		for id, other := range s.sessions {
			other.Active = false
			s.sessions[id] = other
		}
	}
	s.sessions[sess.ID] = sess
}

func (s *Store) PutClass(c attendance.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[c.ID] = c
}

func (s *Store) PutSubject(sub attendance.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[sub.ID] = sub
}

func (s *Store) PutLecture(l attendance.Lecture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lectures[l.ID] = l
}

func (s *Store) PutQRCode(q attendance.QRCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qrcodes[q.Token] = q
}

func (s *Store) PutAttendance(a attendance.Attendance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendance[a.ID] = a
}

// QRCodes returns how many tokens have been stored.
func (s *Store) QRCodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.qrcodes)
}

// -------- attendance.Store --------

func (s *Store) GetUser(_ context.Context, id string) (attendance.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return attendance.User{}, missing("user")
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (attendance.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return attendance.User{}, missing("user")
}

func (s *Store) GetCourse(_ context.Context, id string) (attendance.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return attendance.Course{}, missing("course")
	}
	return c, nil
}

func (s *Store) GetClass(_ context.Context, id string) (attendance.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return attendance.Class{}, missing("class")
	}
	return c, nil
}

func (s *Store) GetSubject(_ context.Context, id string) (attendance.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subjects[id]
	if !ok {
		return attendance.Subject{}, missing("subject")
	}
	return sub, nil
}

func (s *Store) GetLecture(_ context.Context, id string) (attendance.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lectures[id]
	if !ok {
		return attendance.Lecture{}, missing("lecture")
	}
	return l, nil
}

func (s *Store) ActiveSession(_ context.Context) (*attendance.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Active {
			sess := sess
			return &sess, nil
		}
	}
	return nil, nil
}

func (s *Store) IsEnrolled(_ context.Context, classID, studentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster[classID][studentID], nil
}

func (s *Store) Roster(_ context.Context, classID string) ([]attendance.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []attendance.User
	for id := range s.roster[classID] {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Enroll(_ context.Context, classID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roster[classID] == nil {
		s.roster[classID] = make(map[string]bool)
	}
	s.roster[classID][studentID] = true
	return nil
}

func (s *Store) Unenroll(_ context.Context, classID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roster[classID], studentID)
	return nil
}

func (s *Store) subjectsWhere(sessionID string, keep func(attendance.Subject) bool) []attendance.Subject {
	var out []attendance.Subject
	for _, sub := range s.subjects {
		if s.classes[sub.ClassID].SessionID != sessionID || !keep(sub) {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) StudentSubjects(_ context.Context, studentID, sessionID string) ([]attendance.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subjectsWhere(sessionID, func(sub attendance.Subject) bool {
		return s.roster[sub.ClassID][studentID]
	}), nil
}

func (s *Store) TeacherSubjects(_ context.Context, teacherID, sessionID string) ([]attendance.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subjectsWhere(sessionID, func(sub attendance.Subject) bool {
		return sub.TeacherID == teacherID
	}), nil
}

func (s *Store) CreateLecture(_ context.Context, l attendance.Lecture) (attendance.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lectures[l.ID] = l
	return l, nil
}

func (s *Store) ListLectures(_ context.Context, subjectID string, includeArchived bool) ([]attendance.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []attendance.Lecture
	for _, l := range s.lectures {
		if l.SubjectID == subjectID && (includeArchived || !l.Archived) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Time > out[j].Time
	})
	return out, nil
}

func (s *Store) CountLectures(_ context.Context, subjectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.lectures {
		if l.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

func (s *Store) LecturesOn(_ context.Context, day time.Time) ([]attendance.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issued := make(map[string]bool)
	for _, q := range s.qrcodes {
		if q.LectureID != nil {
			issued[*q.LectureID] = true
		}
	}
	var out []attendance.Lecture
	for _, l := range s.lectures {
		if !l.Archived && issued[l.ID] && l.Date.Format(time.DateOnly) == day.Format(time.DateOnly) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ArchiveLectures(_ context.Context, teacherID string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, l := range s.lectures {
		if l.Archived || !l.Date.Before(cutoff) || s.subjects[l.SubjectID].TeacherID != teacherID {
			continue
		}
		l.Archived = true
		s.lectures[id] = l
		n++
	}
	return n, nil
}

func (s *Store) ActiveQRCode(_ context.Context, lectureID string, now time.Time) (*attendance.QRCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *attendance.QRCode
	for _, q := range s.qrcodes {
		if q.LectureID == nil || *q.LectureID != lectureID || !q.ExpiresAt.After(now) {
			continue
		}
		if best == nil || q.ExpiresAt.After(best.ExpiresAt) {
			q := q
			best = &q
		}
	}
	return best, nil
}

func (s *Store) CreateQRCode(_ context.Context, q attendance.QRCode) (attendance.QRCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qrcodes[q.Token] = q
	return q, nil
}

func (s *Store) GetQRCodeByToken(_ context.Context, token string) (attendance.QRCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.qrcodes[token]
	if !ok {
		return attendance.QRCode{}, missing("qr code")
	}
	return q, nil
}

// withName fills the joined student name. Callers hold mu.
func (s *Store) withName(a attendance.Attendance) attendance.Attendance {
	a.StudentName = s.users[a.StudentID].Name
	return a
}

func (s *Store) GetOrCreateAttendance(_ context.Context, a attendance.Attendance) (attendance.Attendance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attendance {
		if existing.StudentID == a.StudentID && existing.LectureID == a.LectureID {
			return s.withName(existing), false, nil
		}
	}
	s.attendance[a.ID] = a
	return s.withName(a), true, nil
}

func (s *Store) GetAttendance(_ context.Context, id string) (attendance.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[id]
	if !ok {
		return attendance.Attendance{}, missing("attendance")
	}
	return s.withName(a), nil
}

func (s *Store) SetAttendanceStatus(_ context.Context, id string, status attendance.Status, reason string, at time.Time) (attendance.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[id]
	if !ok {
		return attendance.Attendance{}, missing("attendance")
	}
	a.Status, a.Reason, a.UpdatedAt = status, reason, at
	s.attendance[id] = a
	return s.withName(a), nil
}

func (s *Store) ApprovePending(_ context.Context, lectureID string, at time.Time) ([]attendance.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []attendance.Attendance
	for id, a := range s.attendance {
		if a.LectureID != lectureID || a.Status != attendance.StatusPending {
			continue
		}
		a.Status, a.Reason, a.UpdatedAt = attendance.StatusApproved, "", at
		s.attendance[id] = a
		out = append(out, s.withName(a))
	}
	return out, nil
}

func (s *Store) ListAttendance(_ context.Context, f attendance.AttendanceFilter) ([]attendance.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []attendance.Attendance
	for _, a := range s.attendance {
		switch {
		case f.StudentID != "" && a.StudentID != f.StudentID,
			f.LectureID != "" && a.LectureID != f.LectureID,
			f.SubjectID != "" && a.SubjectID != f.SubjectID,
			f.Status != "" && a.Status != f.Status,
			f.From != nil && a.LectureDate.Before(*f.From),
			f.To != nil && a.LectureDate.After(*f.To):
			continue
		}
		out = append(out, s.withName(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LectureDate.Equal(out[j].LectureDate) {
			return out[i].LectureDate.Before(out[j].LectureDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CountApproved(_ context.Context, subjectID, studentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attendance {
		if a.SubjectID == subjectID && a.StudentID == studentID && a.Status == attendance.StatusApproved {
			n++
		}
	}
	return n, nil
}
