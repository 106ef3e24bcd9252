package mail

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ConsoleSender logs messages instead of sending them. It satisfies both
// Sender and SiteSender and keeps a copy of everything it was given.
type ConsoleSender struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewConsoleSender builds a ConsoleSender.
func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger}
}

// Send logs msg.
func (c *ConsoleSender) Send(ctx context.Context, msg Message) error {
	return c.SendVia(ctx, SMTPCredentials{}, msg)
}

// SendVia logs msg together with the SMTP host it would have used.
func (c *ConsoleSender) SendVia(ctx context.Context, creds SMTPCredentials, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	c.logger.Info("email",
		zap.String("to", msg.To.String()),
		zap.String("from", creds.From.Email),
		zap.String("smtp_host", creds.Host),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

// Sent returns a copy of the logged messages.
func (c *ConsoleSender) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}
