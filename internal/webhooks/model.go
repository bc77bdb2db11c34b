// Package webhooks fans ledger events out to operator-registered HTTP
// endpoints. Every delivery is signed with the subscription's HMAC secret
// and recorded, successful or not, as an audit row.
package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// Subscription represents an operator's subscription to ledger events.
type Subscription struct {
	ID         uuid.UUID `json:"id"          db:"id"`
	OperatorID uuid.UUID `json:"operator_id" db:"operator_id"`
	URL        string    `json:"url"         db:"url"`
	Events     []string  `json:"events"      db:"events"`
	Secret     string    `json:"-"           db:"secret"` // never returned in API responses
	Active     bool      `json:"active"      db:"active"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// Payload is the JSON body POSTed to subscribed endpoints.
type Payload struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields"`
}

// Delivery records the outcome of a single delivery attempt.
type Delivery struct {
	ID             uuid.UUID `json:"id"              db:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id" db:"subscription_id"`
	EventType      string    `json:"event_type"      db:"event_type"`
	StatusCode     int       `json:"status_code"     db:"status_code"`
	Attempt        int       `json:"attempt"         db:"attempt"`
	Success        bool      `json:"success"         db:"success"`
	ErrorMessage   string    `json:"error_message"   db:"error_message"`
	DeliveredAt    time.Time `json:"delivered_at"    db:"delivered_at"`
}

// CreateSubscriptionRequest is the payload for creating a subscription.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url"    binding:"required,url"`
	Events []string `json:"events" binding:"required"`
}
