package waterledger

import (
	"errors"
	"fmt"
)

// The ledger fails in exactly five ways. Callers branch with errors.Is
// (errors.As for ErrInvalidParameter); HTTP handlers map each kind to a
// status code.
var (
	// ErrUnauthorized means the caller lacks the role the operation requires,
	// is not the owner, or is not the distributor who recorded the record.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrInvalidReference means an ID does not resolve to a record.
	// ID 0 is reserved and never resolves.
	ErrInvalidReference = errors.New("reference does not resolve")

	// ErrUnsafeSource means the referenced quality record's stored verdict
	// is unsafe, so the water must not be distributed.
	ErrUnsafeSource = errors.New("referenced quality record is unsafe")

	// ErrAlreadyConfirmed means the distribution's delivery was already
	// confirmed; the delivered flag transitions exactly once.
	ErrAlreadyConfirmed = errors.New("delivery already confirmed")
)

// ErrNotFound is returned by Store implementations for lookups of IDs that
// were never assigned. The Ledger facade translates it to ErrInvalidReference.
var ErrNotFound = errors.New("record not found")

// ErrInvalidParameter reports a numeric input outside its validation range.
// Field names the offending parameter ("ph", "tds", "turbidity",
// "temperature" or "quantity").
type ErrInvalidParameter struct {
	Field string
}

func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("parameter %q out of range", e.Field)
}
