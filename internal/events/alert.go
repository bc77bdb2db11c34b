package events

import (
	"context"
	"fmt"

	"github.com/aquatrace/aquatrace/internal/email"
	"github.com/aquatrace/aquatrace/internal/waterledger"
	"go.uber.org/zap"
)

// AlertSink mails the configured recipients whenever a quality record with
// an unsafe verdict is appended. Distribution of that water is already
// blocked by the ledger itself; the mail exists so site operators start
// remediation before anyone retests.
type AlertSink struct {
	sender     email.Sender
	recipients []string
	logger     *zap.Logger
}

// NewAlertSink creates an AlertSink. With no recipients it publishes nothing.
func NewAlertSink(sender email.Sender, recipients []string, logger *zap.Logger) *AlertSink {
	return &AlertSink{sender: sender, recipients: recipients, logger: logger}
}

// Publish implements waterledger.Sink. Mail goes out on its own goroutine;
// a slow relay must not stall the ledger's caller.
func (s *AlertSink) Publish(_ context.Context, ev waterledger.Event) {
	if ev.Type != waterledger.EventQualityRecorded || ev.Fields["is_safe"] != "false" {
		return
	}
	if len(s.recipients) == 0 {
		return
	}

	subject := fmt.Sprintf("[AquaTrace] unsafe water at %s", ev.Fields["location"])
	body := fmt.Sprintf(
		"Quality record %s at location %q was recorded UNSAFE by %s.\n\n"+
			"The ledger will refuse distributions that reference this record.\n"+
			"Schedule a retest and investigate the source.\n",
		ev.Fields["quality_id"], ev.Fields["location"], ev.Fields["verifier"],
	)

	go func() {
		// Detached from the request context: the alert should still go out
		// after the originating HTTP request completes.
		if err := s.sender.Send(context.Background(), s.recipients, subject, body); err != nil {
			s.logger.Error("unsafe-water alert mail failed",
				zap.String("quality_id", ev.Fields["quality_id"]),
				zap.Error(err),
			)
		}
	}()
}
