package webhooks

import (
	"context"
	"time"

	"github.com/aquatrace/aquatrace/internal/waterledger"
)

// Sink adapts the webhook Service to the ledger's event sink interface so
// it can sit in the post-commit fanout next to logging and metrics.
type Sink struct {
	svc *Service
}

// NewSink wraps svc as a ledger event sink.
func NewSink(svc *Service) *Sink {
	return &Sink{svc: svc}
}

// Publish implements waterledger.Sink.
func (s *Sink) Publish(ctx context.Context, ev waterledger.Event) {
	s.svc.Dispatch(ctx, string(ev.Type), time.Unix(ev.At, 0).UTC(), ev.Fields)
}
