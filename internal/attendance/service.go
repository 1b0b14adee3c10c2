package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qrattend/internal/auth"
	"qrattend/internal/metrics"
	"qrattend/internal/notify"
	"qrattend/internal/queue"
)

// Options tunes a Service. Zero values get defaults.
type Options struct {
	QRValidity time.Duration
	Location   *time.Location
	Clock      func() time.Time
}

// Service implements token issuance, claim submission and the approval workflow.
type Service struct {
	store   Store
	relay   notify.Publisher
	jobs    queue.Publisher
	metrics *metrics.Metrics
	logger  *zap.Logger

	qrValidity time.Duration
	loc        *time.Location
	now        func() time.Time
}

// NewService wires a service. QR tokens are valid for one minute unless configured otherwise.
func NewService(store Store, relay notify.Publisher, jobs queue.Publisher, m *metrics.Metrics, logger *zap.Logger, opts Options) *Service {
	if opts.QRValidity <= 0 {
		opts.QRValidity = time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		store:      store,
		relay:      relay,
		jobs:       jobs,
		metrics:    m,
		logger:     logger,
		qrValidity: opts.QRValidity,
		loc:        opts.Location,
		now:        opts.Clock,
	}
}

// today is the current calendar day in the service's time zone.
func (s *Service) today() time.Time { return dateOf(s.now().In(s.loc)) }

// ownedSubject loads a subject and checks that actor is its teacher.
func (s *Service) ownedSubject(ctx context.Context, actor auth.Actor, subjectID string) (Subject, error) {
	switch actor.Role {
	case auth.RoleTeacher:
	case auth.RoleStudent, auth.RoleAdmin:
		return Subject{}, forbidden("Only the subject's teacher can do this")
	default:
		return Subject{}, forbidden("Unknown role")
	}
	sub, err := s.store.GetSubject(ctx, subjectID)
	if err != nil {
		return Subject{}, err
	}
	if sub.TeacherID != actor.ID {
		return Subject{}, forbidden("You are not the teacher of %s", sub.Name)
	}
	return sub, nil
}

// ownedLecture loads a lecture whose subject is taught by actor.
func (s *Service) ownedLecture(ctx context.Context, actor auth.Actor, lectureID string) (Lecture, Subject, error) {
	lecture, err := s.store.GetLecture(ctx, lectureID)
	if err != nil {
		return Lecture{}, Subject{}, err
	}
	sub, err := s.ownedSubject(ctx, actor, lecture.SubjectID)
	if err != nil {
		return Lecture{}, Subject{}, err
	}
	return lecture, sub, nil
}

// IssueQRCode returns the lecture's live token, minting a new one when none is live.
func (s *Service) IssueQRCode(ctx context.Context, actor auth.Actor, lectureID string) (QRCode, error) {
	lecture, _, err := s.ownedLecture(ctx, actor, lectureID)
	if err != nil {
		return QRCode{}, err
	}
	if dateOf(lecture.Date).Before(s.today()) {
		return QRCode{}, newError(ErrInvalidState, "Cannot generate QR code for a past lecture")
	}

	now := s.now()
	active, err := s.store.ActiveQRCode(ctx, lecture.ID, now)
	if err != nil {
		return QRCode{}, fmt.Errorf("lookup active qr code: %w", err)
	}
	if active != nil {
		s.metrics.QRTokens.WithLabelValues("reused").Inc()
		return *active, nil
	}

	id := lecture.ID
	qr, err := s.store.CreateQRCode(ctx, QRCode{
		ID:        uuid.NewString(),
		LectureID: &id,
		Token:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.qrValidity),
	})
	if err != nil {
		return QRCode{}, fmt.Errorf("create qr code: %w", err)
	}
	s.metrics.QRTokens.WithLabelValues("minted").Inc()
	s.logger.Info("qr code minted", zap.String("lecture_id", lecture.ID), zap.Time("expires_at", qr.ExpiresAt))
	return qr, nil
}

// LiveQRCode returns the lecture's unexpired token without minting one.
func (s *Service) LiveQRCode(ctx context.Context, actor auth.Actor, lectureID string) (QRCode, error) {
	lecture, _, err := s.ownedLecture(ctx, actor, lectureID)
	if err != nil {
		return QRCode{}, err
	}
	active, err := s.store.ActiveQRCode(ctx, lecture.ID, s.now())
	if err != nil {
		return QRCode{}, fmt.Errorf("lookup active qr code: %w", err)
	}
	if active == nil {
		return QRCode{}, newError(ErrNotFound, "No active QR code for this lecture")
	}
	return *active, nil
}

// Submission is the outcome of a scan.
type Submission struct {
	Attendance Attendance
	Created    bool
}

// Submit records a student's scan of token. Only the first scan for a
// (student, lecture) pair creates a claim; later scans report the stored one.
func (s *Service) Submit(ctx context.Context, actor auth.Actor, token string) (res Submission, err error) {
	defer func() { s.metrics.Submissions.WithLabelValues(submitOutcome(res, err)).Inc() }()

	token = strings.TrimSpace(token)
	if token == "" {
		return Submission{}, invalid("QR code data not provided")
	}
	qr, err := s.store.GetQRCodeByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return Submission{}, newError(ErrNotFound, "Invalid QR code")
	}
	if err != nil {
		return Submission{}, fmt.Errorf("lookup qr code: %w", err)
	}
	now := s.now()
	if !qr.ExpiresAt.After(now) {
		return Submission{}, newError(ErrExpired, "QR code has expired")
	}

	switch actor.Role {
	case auth.RoleStudent:
	case auth.RoleTeacher, auth.RoleAdmin:
		return Submission{}, forbidden("Only students can mark attendance")
	default:
		return Submission{}, forbidden("Only students can mark attendance")
	}
	if qr.LectureID == nil {
		return Submission{}, newError(ErrInvalidState, "QR code is not linked to a lecture")
	}

	lecture, err := s.store.GetLecture(ctx, *qr.LectureID)
	if err != nil {
		return Submission{}, err
	}
	sub, err := s.store.GetSubject(ctx, lecture.SubjectID)
	if err != nil {
		return Submission{}, err
	}
	class, err := s.store.GetClass(ctx, sub.ClassID)
	if err != nil {
		return Submission{}, err
	}
	enrolled, err := s.store.IsEnrolled(ctx, class.ID, actor.ID)
	if err != nil {
		return Submission{}, fmt.Errorf("check roster: %w", err)
	}
	if !enrolled {
		return Submission{}, forbidden("You are not enrolled in %s", class.Name)
	}

	att, created, err := s.store.GetOrCreateAttendance(ctx, Attendance{
		ID:          uuid.NewString(),
		StudentID:   actor.ID,
		LectureID:   lecture.ID,
		SubjectID:   sub.ID,
		LectureDate: lecture.Date,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("record attendance: %w", err)
	}
	if created {
		s.announceClaim(ctx, att)
		s.enqueueConfirmation(ctx, att.ID)
	}
	return Submission{Attendance: att, Created: created}, nil
}

// enqueueTimeout bounds how long a scan waits on the job queue.
const enqueueTimeout = 2 * time.Second

// enqueueConfirmation is fire-and-forget like publish: a full or slow queue
// loses the confirmation mail, never the claim.
func (s *Service) enqueueConfirmation(ctx context.Context, attendanceID string) {
	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := s.jobs.Publish(ctx, queue.Message{Type: queue.TypeConfirm, Body: []byte(attendanceID)}); err != nil {
		s.logger.Warn("queue confirmation failed", zap.String("attendance_id", attendanceID), zap.Error(err))
	}
}

func submitOutcome(res Submission, err error) string {
	switch {
	case err == nil && res.Created:
		return "created"
	case err == nil:
		return "duplicate"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "unknown_token"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrAuthorization):
		return "forbidden"
	case errors.Is(err, ErrInvalidState):
		return "unlinked"
	default:
		return "error"
	}
}

// Approve marks a claim approved.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, attendanceID string) (Attendance, error) {
	return s.transition(ctx, actor, attendanceID, StatusApproved, "")
}

// Reject marks a claim rejected, replacing any earlier reason.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, attendanceID, reason string) (Attendance, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectReason
	}
	return s.transition(ctx, actor, attendanceID, StatusRejected, reason)
}

func (s *Service) transition(ctx context.Context, actor auth.Actor, attendanceID string, to Status, reason string) (Attendance, error) {
	att, err := s.store.GetAttendance(ctx, attendanceID)
	if err != nil {
		return Attendance{}, err
	}
	sub, err := s.ownedSubject(ctx, actor, att.SubjectID)
	if err != nil {
		return Attendance{}, err
	}
	if !CanTransition(att.Status, to) {
		return Attendance{}, newError(ErrInvalidState, "Attendance cannot move from %s to %s", att.Status, to)
	}
	updated, err := s.store.SetAttendanceStatus(ctx, att.ID, to, reason, s.now())
	if err != nil {
		return Attendance{}, fmt.Errorf("update attendance: %w", err)
	}
	s.metrics.Transitions.WithLabelValues(string(to)).Inc()
	s.announceStatus(ctx, updated, sub)
	return updated, nil
}

// ApproveAll approves every pending claim of a lecture and returns the rows it changed.
func (s *Service) ApproveAll(ctx context.Context, actor auth.Actor, lectureID string) ([]Attendance, error) {
	lecture, sub, err := s.ownedLecture(ctx, actor, lectureID)
	if err != nil {
		return nil, err
	}
	approved, err := s.store.ApprovePending(ctx, lecture.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("approve pending: %w", err)
	}
	for _, att := range approved {
		s.metrics.Transitions.WithLabelValues(string(StatusApproved)).Inc()
		s.announceStatus(ctx, att, sub)
	}
	return approved, nil
}

// ManualMark records a student as present without a scan. The claim is
// created approved, or an existing claim is moved to approved.
func (s *Service) ManualMark(ctx context.Context, actor auth.Actor, lectureID, studentID string) (Attendance, error) {
	lecture, sub, err := s.ownedLecture(ctx, actor, lectureID)
	if err != nil {
		return Attendance{}, err
	}
	class, err := s.store.GetClass(ctx, sub.ClassID)
	if err != nil {
		return Attendance{}, err
	}
	enrolled, err := s.store.IsEnrolled(ctx, class.ID, studentID)
	if err != nil {
		return Attendance{}, fmt.Errorf("check roster: %w", err)
	}
	if !enrolled {
		return Attendance{}, invalid("Student is not enrolled in %s", class.Name)
	}

	now := s.now()
	att, created, err := s.store.GetOrCreateAttendance(ctx, Attendance{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		LectureID:   lecture.ID,
		SubjectID:   sub.ID,
		LectureDate: lecture.Date,
		Status:      StatusApproved,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Attendance{}, fmt.Errorf("record attendance: %w", err)
	}
	if !created {
		if att.Status == StatusApproved {
			return att, nil
		}
		att, err = s.store.SetAttendanceStatus(ctx, att.ID, StatusApproved, "", now)
		if err != nil {
			return Attendance{}, fmt.Errorf("update attendance: %w", err)
		}
	}
	s.metrics.Transitions.WithLabelValues(string(StatusApproved)).Inc()
	s.announceStatus(ctx, att, sub)
	return att, nil
}

// PendingClaims lists a lecture's claims still awaiting a decision.
func (s *Service) PendingClaims(ctx context.Context, actor auth.Actor, lectureID string) ([]Attendance, error) {
	lecture, _, err := s.ownedLecture(ctx, actor, lectureID)
	if err != nil {
		return nil, err
	}
	return s.store.ListAttendance(ctx, AttendanceFilter{LectureID: lecture.ID, Status: StatusPending})
}

// AuthorizeLectureViewer checks that actor may watch the lecture's live channel.
func (s *Service) AuthorizeLectureViewer(ctx context.Context, actor auth.Actor, lectureID string) error {
	_, _, err := s.ownedLecture(ctx, actor, lectureID)
	return err
}

type claimPayload struct {
	AttendanceID string    `json:"attendance_id"`
	LectureID    string    `json:"lecture_id"`
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	Status       Status    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

type statusPayload struct {
	AttendanceID string `json:"attendance_id"`
	Subject      string `json:"subject"`
	Status       Status `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

// announceClaim tells the lecture's live view about a new claim.
func (s *Service) announceClaim(ctx context.Context, att Attendance) {
	name := att.StudentName
	if name == "" {
		if u, err := s.store.GetUser(ctx, att.StudentID); err == nil {
			name = u.Name
		}
	}
	s.publish(ctx, notify.LectureGroup(att.LectureID), notify.TypeAttendanceUpdate, claimPayload{
		AttendanceID: att.ID,
		LectureID:    att.LectureID,
		StudentID:    att.StudentID,
		StudentName:  name,
		Status:       att.Status,
		Timestamp:    att.CreatedAt,
	})
}

// announceStatus tells the student about a decision on their claim.
func (s *Service) announceStatus(ctx context.Context, att Attendance, sub Subject) {
	payload := statusPayload{AttendanceID: att.ID, Subject: sub.Name, Status: att.Status}
	if att.Status == StatusRejected {
		payload.Reason = att.Reason
	}
	s.publish(ctx, notify.StudentGroup(att.StudentID), notify.TypeAttendanceStatus, payload)
}

// publish is fire-and-forget: failures are logged and counted, never returned.
func (s *Service) publish(ctx context.Context, group notify.Group, typ string, payload any) {
	evt, err := notify.NewEvent(typ, payload)
	if err == nil {
		err = s.relay.Publish(ctx, group, evt)
	}
	if err != nil {
		s.metrics.RelayFailures.Inc()
		s.logger.Warn("publish notification failed", zap.String("group", string(group)), zap.Error(err))
	}
}
