// Package mail sends attendance confirmation and roll call emails to students.
package mail

import (
	"bytes"
	"context"
	htmltmpl "html/template"
	"net/mail"
	texttmpl "text/template"
	"time"
)

// Message is a rendered email.
type Message struct {
	To          []mail.Address
	Subject     string
	TextContent string
	HTMLContent string
}

func (m Message) HasRecipients() bool { return len(m.To) > 0 }

func (m Message) HasContent() bool { return m.TextContent != "" || m.HTMLContent != "" }

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Confirmation describes a freshly submitted claim.
type Confirmation struct {
	StudentName string
	StudentMail string
	Subject     string
	Class       string
	Course      string
	LectureDate time.Time
	LectureTime string
	Status      string
}

var (
	confirmText = texttmpl.Must(texttmpl.New("confirm.txt").Parse(`Hello {{.StudentName}},

Your attendance for {{.Subject}} ({{.Class}}, {{.Course}}) on {{.LectureDate.Format "2006-01-02"}} at {{.LectureTime}} was received.
Current status: {{.Status}}.

You will be notified when your teacher reviews it.
`))

	confirmHTML = htmltmpl.Must(htmltmpl.New("confirm.gohtml").Parse(`<p>Hello {{.StudentName}},</p>
<p>Your attendance for <strong>{{.Subject}}</strong> ({{.Class}}, {{.Course}}) on {{.LectureDate.Format "2006-01-02"}} at {{.LectureTime}} was received.</p>
<p>Current status: <strong>{{.Status}}</strong>.</p>
<p>You will be notified when your teacher reviews it.</p>
`))
)

// Render builds the confirmation message.
func (c Confirmation) Render() (Message, error) {
	var text, html bytes.Buffer
	if err := confirmText.Execute(&text, c); err != nil {
		return Message{}, err
	}
	if err := confirmHTML.Execute(&html, c); err != nil {
		return Message{}, err
	}
	return Message{
		To:          []mail.Address{{Name: c.StudentName, Address: c.StudentMail}},
		Subject:     "Attendance received: " + c.Subject,
		TextContent: text.String(),
		HTMLContent: html.String(),
	}, nil
}

// RollCall tells a student whether they were recorded at a lecture.
type RollCall struct {
	StudentName string
	StudentMail string
	Subject     string
	LectureDate time.Time
	LectureTime string
	Present     bool
}

var (
	rollCallText = texttmpl.Must(texttmpl.New("rollcall.txt").Parse(`Dear {{.StudentName}},

{{if .Present -}}
Your attendance for {{.Subject}} on {{.LectureDate.Format "2006-01-02"}} at {{.LectureTime}} has been recorded.
{{- else -}}
You were marked absent for {{.Subject}} on {{.LectureDate.Format "2006-01-02"}} at {{.LectureTime}}.

Please contact your teacher if you believe this is an error.
{{- end}}
`))

	rollCallHTML = htmltmpl.Must(htmltmpl.New("rollcall.gohtml").Parse(`<p>Dear {{.StudentName}},</p>
{{if .Present -}}
<p>Your attendance for <strong>{{.Subject}}</strong> on {{.LectureDate.Format "2006-01-02"}} at {{.LectureTime}} has been recorded.</p>
{{- else -}}
<p>You were marked absent for <strong>{{.Subject}}</strong> on {{.LectureDate.Format "2006-01-02"}} at {{.LectureTime}}.</p>
<p>Please contact your teacher if you believe this is an error.</p>
{{- end}}
`))
)

// Render builds the presence or absence message.
func (r RollCall) Render() (Message, error) {
	var text, html bytes.Buffer
	if err := rollCallText.Execute(&text, r); err != nil {
		return Message{}, err
	}
	if err := rollCallHTML.Execute(&html, r); err != nil {
		return Message{}, err
	}
	subject := "Absence notification: " + r.Subject
	if r.Present {
		subject = "Attendance confirmed: " + r.Subject
	}
	return Message{
		To:          []mail.Address{{Name: r.StudentName, Address: r.StudentMail}},
		Subject:     subject,
		TextContent: text.String(),
		HTMLContent: html.String(),
	}, nil
}
