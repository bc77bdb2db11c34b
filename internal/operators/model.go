// Package operators manages console accounts for the humans who run an
// AquaTrace node. Operators sign up with email/password or an OAuth
// provider, hold session tokens, and manage webhook subscriptions.
// They are not ledger identities: an operator never appears in a quality
// or distribution record.
package operators

import (
	"time"

	"github.com/google/uuid"
)

// Operator is a console account holder.
type Operator struct {
	ID           uuid.UUID `json:"id"         db:"id"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password_hash"`
	Name         string    `json:"name"       db:"name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// OAuthLink ties an operator to an OAuth provider identity.
type OAuthLink struct {
	ID         uuid.UUID `json:"id"          db:"id"`
	OperatorID uuid.UUID `json:"operator_id" db:"operator_id"`
	Provider   string    `json:"provider"    db:"provider"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}
