package events

import (
	"context"

	"github.com/aquatrace/aquatrace/internal/waterledger"
	"go.uber.org/zap"
)

// LogSink writes every ledger event to the structured log. It doubles as a
// poor man's event archive on deployments with log retention.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink backed by the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish implements waterledger.Sink.
func (s *LogSink) Publish(_ context.Context, ev waterledger.Event) {
	s.logger.Info("ledger event",
		zap.String("event_id", ev.ID.String()),
		zap.String("type", string(ev.Type)),
		zap.Int64("at", ev.At),
		zap.Any("fields", ev.Fields),
	)
}
