package waterledger

import (
	"context"

	"github.com/google/uuid"
)

// EventType identifies which mutation an Event describes.
type EventType string

const (
	EventQualityRecorded     EventType = "quality.recorded"
	EventDistributionTracked EventType = "distribution.tracked"
	EventDeliveryConfirmed   EventType = "distribution.delivered"
	EventAccessGranted       EventType = "access.granted"
	EventAccessRevoked       EventType = "access.revoked"
)

// Event is the post-commit notification for one successful mutation.
// At carries the same logical timestamp the mutation was stamped with;
// Fields holds the operation's identifying values as strings.
type Event struct {
	ID     uuid.UUID         `json:"id"`
	Type   EventType         `json:"type"`
	At     int64             `json:"at"`
	Fields map[string]string `json:"fields"`
}

// Sink consumes ledger events. Publish is called after the mutation has
// committed and must not block the caller for long; sinks handle their own
// failures (there is no error return — event delivery can never fail a
// ledger operation).
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

func newEvent(t EventType, at int64, fields map[string]string) Event {
	return Event{ID: uuid.New(), Type: t, At: at, Fields: fields}
}
