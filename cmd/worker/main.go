package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/config"
	"qrattend/internal/logging"
	"qrattend/internal/mail"
	"qrattend/internal/metrics"
	"qrattend/internal/notify"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Worker mails scan confirmations queued by the API. With --teacher it runs the
// retention sweep once; with --roll-call it mails the day's presence and absence
// notices once.
func main() {
	flags := pflag.NewFlagSet("worker", pflag.ExitOnError)
	configPath := flags.String("config", "", "optional config file (yaml, json or toml)")
	archiveTeacher := flags.String("teacher", "", "archive this teacher's old lectures and exit")
	archiveDays := flags.Int("archive-days", 0, "age in days after which lectures are archived (default ARCHIVE_DAYS)")
	rollCall := flags.String("roll-call", "", "mail presence and absence notices for a day (YYYY-MM-DD or today) and exit")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *archiveTeacher, *archiveDays, *rollCall); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.App, logger *zap.Logger, archiveTeacher string, archiveDays int, rollCall string) error {
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()

	m := metrics.New(prometheus.NewRegistry())
	svc := attendance.NewService(attendance.NewRepository(db.Client), noRelay{}, noQueue{}, m,
		logger.Named("attendance"), attendance.Options{QRValidity: cfg.QRTTL, Location: cfg.Location()})

	if archiveTeacher != "" {
		if archiveDays <= 0 {
			archiveDays = cfg.ArchiveDays
		}
		n, err := svc.ArchiveLectures(ctx, auth.Actor{ID: archiveTeacher, Role: auth.RoleTeacher}, archiveDays)
		if err != nil {
			return err
		}
		logger.Info("retention sweep done", zap.Int64("archived", n))
		return nil
	}

	var mailer mail.Mailer
	if cfg.SendGridAPIKey != "" {
		mailer = mail.NewSendGrid(cfg.SendGridAPIKey, cfg.AppName, cfg.MailFrom)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, mails are only logged")
		mailer = mail.NewConsole(logger.Named("mail"), cfg.AppName)
	}
	w := &worker{svc: svc, mailer: mailer, metrics: m, logger: logger}

	if rollCall != "" {
		day, err := parseDay(rollCall)
		if err != nil {
			return err
		}
		return w.rollCall(ctx, day)
	}

	// An in-memory queue lives inside the API process; there is nothing to consume here.
	if cfg.QueueBackend != "redis" {
		return errors.New("the worker needs QUEUE_BACKEND=redis")
	}
	redisClient, err := store.NewRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	messages, err := queue.NewRedisQueue(redisClient.Client, "").Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	logger.Info("worker started, waiting for messages")
	w.consume(ctx, messages)
	logger.Info("worker stopped")
	return nil
}

// worker turns confirmation jobs into mails.
type worker struct {
	svc     *attendance.Service
	mailer  mail.Mailer
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func (w *worker) consume(ctx context.Context, messages <-chan queue.Message) {
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Type != queue.TypeConfirm {
				w.logger.Debug("skipping message", zap.String("type", msg.Type))
				continue
			}
			w.metrics.MailsSent.WithLabelValues(w.confirm(ctx, string(msg.Body))).Inc()
		case <-ctx.Done():
			return
		}
	}
}

// confirm mails the student of attendanceID and returns the outcome label.
func (w *worker) confirm(ctx context.Context, attendanceID string) string {
	log := w.logger.With(zap.String("attendance_id", attendanceID))
	cc, err := w.svc.LoadClaimContext(ctx, attendanceID)
	if err != nil {
		log.Warn("load claim failed", zap.Error(err))
		return "failed"
	}
	if cc.Student.Email == "" {
		log.Info("student has no email address")
		return "skipped"
	}
	msg, err := mail.Confirmation{
		StudentName: cc.Student.Name,
		StudentMail: cc.Student.Email,
		Subject:     cc.Subject.Name,
		Class:       cc.Class.Name,
		Course:      cc.Course.Name,
		LectureDate: cc.Lecture.Date,
		LectureTime: cc.Lecture.Time,
		Status:      string(cc.Attendance.Status),
	}.Render()
	if err != nil {
		log.Error("render confirmation failed", zap.Error(err))
		return "failed"
	}
	if err := w.mailer.Send(ctx, msg); err != nil {
		log.Warn("send confirmation failed", zap.Error(err))
		return "failed"
	}
	log.Info("confirmation sent", zap.String("to", cc.Student.Email))
	return "sent"
}

// parseDay reads a --roll-call value; "today" yields the zero time.
func parseDay(v string) (time.Time, error) {
	if v == "today" {
		return time.Time{}, nil
	}
	day, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("roll-call: want YYYY-MM-DD or today, got %q", v)
	}
	return day, nil
}

// rollCall mails every rostered student of the day's lectures whether they were present.
func (w *worker) rollCall(ctx context.Context, day time.Time) error {
	entries, err := w.svc.RollCall(ctx, day)
	if err != nil {
		return err
	}
	absent := 0
	for _, e := range entries {
		if !e.Present {
			absent++
		}
		w.metrics.MailsSent.WithLabelValues(w.notifyRollCall(ctx, e)).Inc()
	}
	w.logger.Info("roll call done", zap.Int("students", len(entries)), zap.Int("absent", absent))
	return nil
}

func (w *worker) notifyRollCall(ctx context.Context, e attendance.RollCallEntry) string {
	log := w.logger.With(zap.String("student_id", e.Student.ID), zap.String("lecture_id", e.Lecture.ID))
	if e.Student.Email == "" {
		log.Info("student has no email address")
		return "skipped"
	}
	msg, err := mail.RollCall{
		StudentName: e.Student.Name,
		StudentMail: e.Student.Email,
		Subject:     e.Subject.Name,
		LectureDate: e.Lecture.Date,
		LectureTime: e.Lecture.Time,
		Present:     e.Present,
	}.Render()
	if err != nil {
		log.Error("render roll call failed", zap.Error(err))
		return "failed"
	}
	if err := w.mailer.Send(ctx, msg); err != nil {
		log.Warn("send roll call failed", zap.Error(err))
		return "failed"
	}
	log.Info("roll call sent", zap.Bool("present", e.Present))
	return "sent"
}

// The worker never submits or decides claims, so its service has nothing to publish.
type (
	noRelay struct{}
	noQueue struct{}
)

func (noRelay) Publish(context.Context, notify.Group, notify.Event) error { return nil }

func (noQueue) Publish(context.Context, queue.Message) error { return nil }
