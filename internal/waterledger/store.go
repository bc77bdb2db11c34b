package waterledger

import "context"

// Store is the persistence interface for the ledger. The layout it
// abstracts is two record sequences with their counters, a per-location
// index over quality records, and the authorization state (owner plus two
// role sets).
//
// Append operations are atomic: AppendQuality assigns the next sequential
// ID, persists the record and extends the location index in one commit, or
// does none of it. Implementations must never leave a gap in either ID
// sequence, even when a commit fails.
type Store interface {
	// InitGenesis establishes the owner and seeds both role sets with it.
	// Re-running with the same owner is a no-op; a different owner is an
	// error (the owner is immutable after genesis).
	InitGenesis(ctx context.Context, owner string) error

	// Owner returns the genesis owner, or "" before InitGenesis has run.
	Owner(ctx context.Context) (string, error)

	// SetRole adds (member=true) or removes (member=false) an account from
	// a role set. Both directions are idempotent.
	SetRole(ctx context.Context, role Role, account string, member bool) error

	// HasRole reports whether account is currently in the role set.
	HasRole(ctx context.Context, role Role, account string) (bool, error)

	// AppendQuality persists rec under the next sequential quality ID and
	// records that ID in the location index. The assigned ID is returned
	// and also written back to rec.ID.
	AppendQuality(ctx context.Context, rec *QualityRecord) (uint64, error)

	// Quality returns the record with the given ID, or ErrNotFound.
	Quality(ctx context.Context, id uint64) (*QualityRecord, error)

	// QualityCount returns the number of quality records (= highest ID).
	QualityCount(ctx context.Context) (uint64, error)

	// HistoryAt returns all quality record IDs for a location in insertion
	// order. Unknown locations yield an empty slice, not an error.
	HistoryAt(ctx context.Context, location string) ([]uint64, error)

	// LatestAt returns the most recently appended quality record ID for a
	// location, or 0 when the location has no records.
	LatestAt(ctx context.Context, location string) (uint64, error)

	// AppendDistribution persists rec under the next sequential
	// distribution ID (an independent sequence). The assigned ID is
	// returned and also written back to rec.ID.
	AppendDistribution(ctx context.Context, rec *DistributionRecord) (uint64, error)

	// Distribution returns the record with the given ID, or ErrNotFound.
	Distribution(ctx context.Context, id uint64) (*DistributionRecord, error)

	// DistributionCount returns the number of distribution records.
	DistributionCount(ctx context.Context) (uint64, error)

	// MarkDelivered flips the delivered flag and stamps deliveredAt.
	// Returns ErrNotFound for an unknown ID and ErrAlreadyConfirmed when
	// the flag is already set, so the transition happens at most once even
	// across concurrent processes sharing the store.
	MarkDelivered(ctx context.Context, id uint64, deliveredAt int64) error
}
