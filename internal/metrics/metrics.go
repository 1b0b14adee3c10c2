package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the attendance workflow collectors.
type Metrics struct {
	QRTokens      *prometheus.CounterVec
	Submissions   *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	RelayFailures prometheus.Counter
	MailsSent     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QRTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "qr_tokens_issued_total",
			Help:      "QR tokens handed out, by whether a live token was reused.",
		}, []string{"result"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "attendance_submissions_total",
			Help:      "Attendance scans, by outcome.",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "attendance_transitions_total",
			Help:      "Attendance status changes made by teachers, by target status.",
		}, []string{"to"}),
		RelayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "relay_publish_failures_total",
			Help:      "Notification events that could not be published.",
		}),
		MailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "confirmation_mails_total",
			Help:      "Confirmation and roll call mails handled by the worker, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.QRTokens, m.Submissions, m.Transitions, m.RelayFailures, m.MailsSent)
	return m
}
