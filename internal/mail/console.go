package mail

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Console logs messages instead of sending them. Used when no SendGrid key is configured.
type Console struct {
	logger     *zap.Logger
	subjPrefix string

	mu   sync.Mutex
	sent []Message
}

var _ Mailer = (*Console)(nil)

func NewConsole(logger *zap.Logger, appName string) *Console {
	return &Console{logger: logger, subjPrefix: "[" + appName + "] "}
}

func (c *Console) Send(_ context.Context, msg Message) error {
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.String())
	}
	c.logger.Info("mail",
		zap.String("to", strings.Join(to, ", ")),
		zap.String("subject", c.subjPrefix+msg.Subject),
		zap.String("body", msg.TextContent),
	)
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

// Sent returns the messages handled so far.
func (c *Console) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}
