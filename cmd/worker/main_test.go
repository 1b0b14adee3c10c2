package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/attendance/attendancetest"
	"qrattend/internal/auth"
	"qrattend/internal/mail"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
)

type failingMailer struct{}

func (failingMailer) Send(context.Context, mail.Message) error { return errors.New("smtp down") }

func newWorker(t *testing.T, mailer mail.Mailer) (*worker, *attendancetest.Store) {
	t.Helper()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	store := attendancetest.NewStore()
	attendancetest.Seed(store, day)
	store.PutAttendance(attendance.Attendance{
		ID:          "att-1",
		StudentID:   attendancetest.AliceID,
		LectureID:   attendancetest.LectureID,
		SubjectID:   attendancetest.SubjectID,
		LectureDate: day,
		Status:      attendance.StatusPending,
	})
	m := metrics.New(prometheus.NewRegistry())
	svc := attendance.NewService(store, noRelay{}, noQueue{}, m, zap.NewNop(), attendance.Options{})
	return &worker{svc: svc, mailer: mailer, metrics: m, logger: zap.NewNop()}, store
}

func TestConsume_SendsConfirmation(t *testing.T) {
	console := mail.NewConsole(zap.NewNop(), "QR Attend")
	w, _ := newWorker(t, console)

	messages := make(chan queue.Message, 3)
	messages <- queue.Message{Type: "other", Body: []byte("att-1")}
	messages <- queue.Message{Type: queue.TypeConfirm, Body: []byte("att-1")}
	messages <- queue.Message{Type: queue.TypeConfirm, Body: []byte("missing")}
	close(messages)
	w.consume(context.Background(), messages)

	sent := console.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@school.test", sent[0].To[0].Address)
	assert.Equal(t, "Attendance received: Algorithms", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Algorithms (CS-A, Computer Science) on 2026-03-10 at 09:00")
	assert.Contains(t, sent[0].TextContent, "Current status: pending.")

	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.MailsSent.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.MailsSent.WithLabelValues("failed")))
}

func TestConfirm_Outcomes(t *testing.T) {
	w, store := newWorker(t, failingMailer{})
	assert.Equal(t, "failed", w.confirm(context.Background(), "att-1"))

	store.PutUser(attendance.User{ID: attendancetest.AliceID, Name: "Alice", Role: auth.RoleStudent, Active: true})
	assert.Equal(t, "skipped", w.confirm(context.Background(), "att-1"))
}

func TestConsume_StopsOnCancel(t *testing.T) {
	w, _ := newWorker(t, mail.NewConsole(zap.NewNop(), "QR Attend"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.consume(ctx, make(chan queue.Message))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume did not return after cancel")
	}
}

func TestRollCall_MailsPresenceAndAbsence(t *testing.T) {
	console := mail.NewConsole(zap.NewNop(), "QR Attend")
	w, store := newWorker(t, console)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, w.rollCall(context.Background(), day))
	assert.Empty(t, console.Sent())

	lectureID := attendancetest.LectureID
	store.PutQRCode(attendance.QRCode{ID: "qr-1", LectureID: &lectureID, Token: "tok", CreatedAt: day, ExpiresAt: day.Add(time.Minute)})
	store.PutAttendance(attendance.Attendance{
		ID:          "att-1",
		StudentID:   attendancetest.AliceID,
		LectureID:   attendancetest.LectureID,
		SubjectID:   attendancetest.SubjectID,
		LectureDate: day,
		Status:      attendance.StatusApproved,
	})

	require.NoError(t, w.rollCall(context.Background(), day))
	sent := console.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "alice@school.test", sent[0].To[0].Address)
	assert.Equal(t, "Attendance confirmed: Algorithms", sent[0].Subject)
	assert.Equal(t, "bob@school.test", sent[1].To[0].Address)
	assert.Equal(t, "Absence notification: Algorithms", sent[1].Subject)
	assert.Equal(t, 2.0, testutil.ToFloat64(w.metrics.MailsSent.WithLabelValues("sent")))
}

func TestParseDay(t *testing.T) {
	day, err := parseDay("today")
	require.NoError(t, err)
	assert.True(t, day.IsZero())

	day, err = parseDay("2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), day)

	_, err = parseDay("10/03/2026")
	assert.Error(t, err)
}
