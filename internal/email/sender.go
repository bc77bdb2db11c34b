// Package email delivers operational alert mail, most importantly the
// contamination notices sent when an unsafe water-quality verdict is
// recorded.
package email

import "context"

// Sender delivers a plain-text message to a set of recipients.
type Sender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}
