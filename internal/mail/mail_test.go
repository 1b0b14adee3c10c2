package mail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func confirmation() Confirmation {
	return Confirmation{
		StudentName: "Alice",
		StudentMail: "alice@school.test",
		Subject:     "Algorithms",
		Class:       "CS-A",
		Course:      "Computer Science",
		LectureDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		LectureTime: "09:00",
		Status:      "pending",
	}
}

func TestConfirmation_Render(t *testing.T) {
	msg, err := confirmation().Render()
	require.NoError(t, err)
	require.Len(t, msg.To, 1)
	assert.Equal(t, "alice@school.test", msg.To[0].Address)
	assert.Equal(t, "Attendance received: Algorithms", msg.Subject)
	assert.Contains(t, msg.TextContent, "Algorithms (CS-A, Computer Science) on 2026-03-10 at 09:00")
	assert.Contains(t, msg.TextContent, "Current status: pending.")
	assert.Contains(t, msg.HTMLContent, "<strong>Algorithms</strong>")
}

func TestConfirmation_EscapesHTML(t *testing.T) {
	c := confirmation()
	c.Subject = "<script>"
	msg, err := c.Render()
	require.NoError(t, err)
	assert.NotContains(t, msg.HTMLContent, "<script>")
	assert.Contains(t, msg.TextContent, "<script>")
}

func TestRollCall_Render(t *testing.T) {
	rc := RollCall{
		StudentName: "Bob",
		StudentMail: "bob@school.test",
		Subject:     "Algorithms",
		LectureDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		LectureTime: "09:00",
	}

	absent, err := rc.Render()
	require.NoError(t, err)
	assert.Equal(t, "bob@school.test", absent.To[0].Address)
	assert.Equal(t, "Absence notification: Algorithms", absent.Subject)
	assert.Contains(t, absent.TextContent, "You were marked absent for Algorithms on 2026-03-10 at 09:00.")
	assert.Contains(t, absent.TextContent, "contact your teacher")
	assert.NotContains(t, absent.TextContent, "recorded")

	rc.Present = true
	present, err := rc.Render()
	require.NoError(t, err)
	assert.Equal(t, "Attendance confirmed: Algorithms", present.Subject)
	assert.Contains(t, present.TextContent, "Your attendance for Algorithms on 2026-03-10 at 09:00 has been recorded.")
	assert.Contains(t, present.HTMLContent, "<strong>Algorithms</strong>")
	assert.NotContains(t, present.TextContent, "absent")
}

func TestConsole_Send(t *testing.T) {
	c := NewConsole(zap.NewNop(), "QR Attend")
	msg, err := confirmation().Render()
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), msg))
	require.NoError(t, c.Send(context.Background(), Message{Subject: "nobody"}))
	assert.Len(t, c.Sent(), 1)
}

func TestSendGrid_Send(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendgridEndpoint, r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sg := NewSendGrid("sg-key", "QR Attend", "noreply@school.test")
	sg.host = srv.URL
	msg, err := confirmation().Render()
	require.NoError(t, err)
	require.NoError(t, sg.Send(context.Background(), msg))

	assert.Equal(t, "Bearer sg-key", auth)
	from := got["from"].(map[string]any)
	assert.Equal(t, "noreply@school.test", from["email"])
	p := got["personalizations"].([]any)[0].(map[string]any)
	assert.Equal(t, "[QR Attend] Attendance received: Algorithms", p["subject"])
	assert.Len(t, got["content"], 2)
}

func TestSendGrid_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	sg := NewSendGrid("wrong", "QR Attend", "noreply@school.test")
	sg.host = srv.URL
	msg, err := confirmation().Render()
	require.NoError(t, err)
	err = sg.Send(context.Background(), msg)
	assert.ErrorContains(t, err, "status 401")
}
