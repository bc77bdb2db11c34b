package email

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// NoopSender logs alert mail to zap instead of delivering it.
// Used in development and whenever SMTP is not configured, so unsafe-water
// alerts still leave a trace in the node's logs.
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a NoopSender backed by the given logger.
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send implements Sender. It logs the message and returns nil.
func (n *NoopSender) Send(_ context.Context, to []string, subject, body string) error {
	n.logger.Info("alert mail (noop, not sent)",
		zap.String("to", strings.Join(to, ", ")),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
