package attendance

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"qrattend/internal/auth"
)

// Percentage is attended/total*100 rounded to the nearest integer, or 0 when total is 0.
func Percentage(attended, total int) int {
	return int(math.Round(ratio(attended, total)))
}

func ratio(attended, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(attended) / float64(total) * 100
}

// StudentSummary is one student's standing in a subject.
type StudentSummary struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Attended    int    `json:"attended"`
	Missed      int    `json:"missed"`
	Percentage  int    `json:"percentage"`
}

// SubjectSummary aggregates a subject's approved attendance.
type SubjectSummary struct {
	SubjectID     string           `json:"subject_id"`
	SubjectName   string           `json:"subject_name"`
	ClassName     string           `json:"class_name"`
	TotalLectures int              `json:"total_lectures"`
	Students      []StudentSummary `json:"students"`
	// Average is the mean of the roster's percentages; only set for class-wide summaries.
	Average *int `json:"average,omitempty"`
}

// SubjectSummary computes attendance for the subject's roster, or for one
// student when scopeStudent is set.
func (s *Service) SubjectSummary(ctx context.Context, subjectID string, scopeStudent *string) (SubjectSummary, error) {
	sub, err := s.store.GetSubject(ctx, subjectID)
	if err != nil {
		return SubjectSummary{}, err
	}
	class, err := s.store.GetClass(ctx, sub.ClassID)
	if err != nil {
		return SubjectSummary{}, err
	}
	total, err := s.store.CountLectures(ctx, sub.ID)
	if err != nil {
		return SubjectSummary{}, fmt.Errorf("count lectures: %w", err)
	}

	var students []User
	if scopeStudent != nil {
		u, err := s.store.GetUser(ctx, *scopeStudent)
		if err != nil {
			return SubjectSummary{}, err
		}
		students = []User{u}
	} else {
		if students, err = s.store.Roster(ctx, class.ID); err != nil {
			return SubjectSummary{}, fmt.Errorf("load roster: %w", err)
		}
	}

	out := SubjectSummary{
		SubjectID:     sub.ID,
		SubjectName:   sub.Name,
		ClassName:     class.Name,
		TotalLectures: total,
		Students:      make([]StudentSummary, 0, len(students)),
	}
	var sum float64
	for _, st := range students {
		attended, err := s.store.CountApproved(ctx, sub.ID, st.ID)
		if err != nil {
			return SubjectSummary{}, fmt.Errorf("count approved: %w", err)
		}
		sum += ratio(attended, total)
		out.Students = append(out.Students, StudentSummary{
			StudentID:   st.ID,
			StudentName: st.Name,
			Attended:    attended,
			Missed:      max(total-attended, 0),
			Percentage:  Percentage(attended, total),
		})
	}
	if scopeStudent == nil {
		avg := 0
		if len(students) > 0 {
			avg = int(math.Round(sum / float64(len(students))))
		}
		out.Average = &avg
	}
	return out, nil
}

// SubjectReport is SubjectSummary with access rules applied: the owning
// teacher and admins see the class, an enrolled student sees only themself.
func (s *Service) SubjectReport(ctx context.Context, actor auth.Actor, subjectID string) (SubjectSummary, error) {
	switch actor.Role {
	case auth.RoleTeacher:
		if _, err := s.ownedSubject(ctx, actor, subjectID); err != nil {
			return SubjectSummary{}, err
		}
		return s.SubjectSummary(ctx, subjectID, nil)
	case auth.RoleAdmin:
		return s.SubjectSummary(ctx, subjectID, nil)
	case auth.RoleStudent:
		sub, err := s.store.GetSubject(ctx, subjectID)
		if err != nil {
			return SubjectSummary{}, err
		}
		enrolled, err := s.store.IsEnrolled(ctx, sub.ClassID, actor.ID)
		if err != nil {
			return SubjectSummary{}, fmt.Errorf("check roster: %w", err)
		}
		if !enrolled {
			return SubjectSummary{}, forbidden("You are not enrolled in this subject")
		}
		id := actor.ID
		return s.SubjectSummary(ctx, subjectID, &id)
	default:
		return SubjectSummary{}, forbidden("Unknown role")
	}
}

// SubjectProgress is one row of a student dashboard.
type SubjectProgress struct {
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	Attended    int    `json:"attended"`
	Total       int    `json:"total"`
	Percentage  int    `json:"percentage"`
}

// StudentDashboard lists the student's subjects in the session with their percentages.
func (s *Service) StudentDashboard(ctx context.Context, actor auth.Actor, session *Session) ([]SubjectProgress, error) {
	if session == nil {
		return nil, ErrNoActiveSession
	}
	if !actor.IsStudent() {
		return nil, forbidden("Only students have a student dashboard")
	}
	subjects, err := s.store.StudentSubjects(ctx, actor.ID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	out := make([]SubjectProgress, 0, len(subjects))
	for _, sub := range subjects {
		total, err := s.store.CountLectures(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("count lectures: %w", err)
		}
		attended, err := s.store.CountApproved(ctx, sub.ID, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("count approved: %w", err)
		}
		out = append(out, SubjectProgress{
			SubjectID:   sub.ID,
			SubjectName: sub.Name,
			Attended:    attended,
			Total:       total,
			Percentage:  Percentage(attended, total),
		})
	}
	return out, nil
}

// TeacherDashboard summarises every subject the teacher owns in the session.
func (s *Service) TeacherDashboard(ctx context.Context, actor auth.Actor, session *Session) ([]SubjectSummary, error) {
	if session == nil {
		return nil, ErrNoActiveSession
	}
	if !actor.IsTeacher() {
		return nil, forbidden("Only teachers have a teacher dashboard")
	}
	subjects, err := s.store.TeacherSubjects(ctx, actor.ID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	out := make([]SubjectSummary, 0, len(subjects))
	for _, sub := range subjects {
		sum, err := s.SubjectSummary(ctx, sub.ID, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// Chart is label/value data for a bar chart of a subject's roster.
type Chart struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// SubjectChart returns per-student percentages for the owning teacher.
func (s *Service) SubjectChart(ctx context.Context, actor auth.Actor, subjectID string) (Chart, error) {
	if _, err := s.ownedSubject(ctx, actor, subjectID); err != nil {
		return Chart{}, err
	}
	sum, err := s.SubjectSummary(ctx, subjectID, nil)
	if err != nil {
		return Chart{}, err
	}
	chart := Chart{Labels: make([]string, 0, len(sum.Students)), Data: make([]int, 0, len(sum.Students))}
	for _, st := range sum.Students {
		chart.Labels = append(chart.Labels, st.StudentName)
		chart.Data = append(chart.Data, st.Percentage)
	}
	return chart, nil
}

// CalendarEvent is one day entry of a student's attendance calendar.
type CalendarEvent struct {
	Title  string `json:"title"`
	Start  string `json:"start"`
	AllDay bool   `json:"allDay"`
	Color  string `json:"color"`
}

var calendarStyle = map[Status]struct{ title, color string }{
	StatusApproved: {"Present", "#28a745"},
	StatusPending:  {"Pending", "#ffc107"},
	StatusRejected: {"Rejected", "#dc3545"},
}

// CalendarEvents lists the student's claims dated between from and to inclusive.
func (s *Service) CalendarEvents(ctx context.Context, actor auth.Actor, from, to time.Time) ([]CalendarEvent, error) {
	if !actor.IsStudent() {
		return nil, forbidden("Only students have an attendance calendar")
	}
	from, to = dateOf(from), dateOf(to)
	if to.Before(from) {
		return nil, invalid("end date is before start date")
	}
	rows, err := s.store.ListAttendance(ctx, AttendanceFilter{StudentID: actor.ID, From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	events := make([]CalendarEvent, 0, len(rows))
	for _, a := range rows {
		style := calendarStyle[a.Status]
		events = append(events, CalendarEvent{
			Title:  style.title,
			Start:  a.LectureDate.Format(time.DateOnly),
			AllDay: true,
			Color:  style.color,
		})
	}
	return events, nil
}

// DayEntry is a student's claim on one date.
type DayEntry struct {
	Subject string `json:"subject"`
	Status  string `json:"status"`
}

// AttendanceOn lists the student's claims for a single date.
func (s *Service) AttendanceOn(ctx context.Context, actor auth.Actor, day time.Time) ([]DayEntry, error) {
	if !actor.IsStudent() {
		return nil, forbidden("Only students can view their attendance by date")
	}
	d := dateOf(day)
	rows, err := s.store.ListAttendance(ctx, AttendanceFilter{StudentID: actor.ID, From: &d, To: &d})
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	names := make(map[string]string)
	out := make([]DayEntry, 0, len(rows))
	for _, a := range rows {
		name, ok := names[a.SubjectID]
		if !ok {
			sub, err := s.store.GetSubject(ctx, a.SubjectID)
			if err != nil {
				return nil, err
			}
			name = sub.Name
			names[a.SubjectID] = name
		}
		out = append(out, DayEntry{Subject: name, Status: titleCase(string(a.Status))})
	}
	return out, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
