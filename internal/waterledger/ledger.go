package waterledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Ledger is the single entry point for all ledger operations. It combines
// authorization, parameter validation, safety evaluation, persistence and
// event emission, and serialises mutations so their read-check-append
// sequences never interleave.
//
// Every mutation is all-or-nothing: on any failure no state changes, no ID
// is consumed and no event is emitted. Events go out only after the store
// has committed.
type Ledger struct {
	mu     sync.RWMutex
	store  Store
	access *AccessRegistry
	clock  Clock
	sink   Sink // nil = no event emission
	logger *zap.Logger
}

// New creates a Ledger over the given store. The zero-value SystemClock is
// used until SetClock replaces it.
func New(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		access: NewAccessRegistry(store),
		clock:  &SystemClock{},
		logger: logger,
	}
}

// SetClock replaces the logical clock. Intended for tests and for
// deployments where an external coordinator supplies timestamps.
func (l *Ledger) SetClock(c Clock) {
	l.clock = c
}

// SetSink configures the post-commit event sink. Set to nil to disable
// event emission.
func (l *Ledger) SetSink(s Sink) {
	l.sink = s
}

// Init establishes the genesis owner, who starts as a member of both role
// sets. Safe to re-run on restart with the same owner; a different owner is
// rejected because ownership is fixed for the lifetime of the ledger.
func (l *Ledger) Init(ctx context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.access.Init(ctx, owner); err != nil {
		return err
	}
	l.logger.Info("ledger initialised", zap.String("owner", owner))
	return nil
}

// Owner returns the genesis owner identity, or "" before Init.
func (l *Ledger) Owner(ctx context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.access.Owner(ctx)
}

// GrantVerifier adds account to the verifier set. Owner only; idempotent.
func (l *Ledger) GrantVerifier(ctx context.Context, caller, account string) error {
	return l.setRole(ctx, caller, account, RoleVerifier, true)
}

// RevokeVerifier removes account from the verifier set. Owner only; idempotent.
func (l *Ledger) RevokeVerifier(ctx context.Context, caller, account string) error {
	return l.setRole(ctx, caller, account, RoleVerifier, false)
}

// GrantDistributor adds account to the distributor set. Owner only; idempotent.
func (l *Ledger) GrantDistributor(ctx context.Context, caller, account string) error {
	return l.setRole(ctx, caller, account, RoleDistributor, true)
}

// RevokeDistributor removes account from the distributor set. Owner only; idempotent.
func (l *Ledger) RevokeDistributor(ctx context.Context, caller, account string) error {
	return l.setRole(ctx, caller, account, RoleDistributor, false)
}

func (l *Ledger) setRole(ctx context.Context, caller, account string, role Role, member bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if member {
		err = l.access.Grant(ctx, caller, account, role)
	} else {
		err = l.access.Revoke(ctx, caller, account, role)
	}
	if err != nil {
		return err
	}

	evType := EventAccessGranted
	if !member {
		evType = EventAccessRevoked
	}

	l.logger.Info("role updated",
		zap.String("role", string(role)),
		zap.String("account", account),
		zap.Bool("member", member),
	)
	// An event goes out on every successful call, including idempotent
	// re-grants: observers see what was asked for, not a membership diff.
	l.emit(ctx, newEvent(evType, l.clock.Now(), map[string]string{
		"role":    string(role),
		"account": account,
		"by":      caller,
	}))
	return nil
}

// IsVerifier reports verifier membership. Open read.
func (l *Ledger) IsVerifier(ctx context.Context, account string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.access.IsVerifier(ctx, account)
}

// IsDistributor reports distributor membership. Open read.
func (l *Ledger) IsDistributor(ctx context.Context, account string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.access.IsDistributor(ctx, account)
}

// RecordQuality appends a water-quality measurement and returns its ID.
// The caller must hold the verifier role; every measurement must be inside
// its plausibility bounds. The safety verdict is evaluated here, once, and
// stored with the record.
func (l *Ledger) RecordQuality(ctx context.Context, caller, location string, ph, tds, turbidity, temperature int64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.access.IsVerifier(ctx, caller)
	if err != nil {
		return 0, fmt.Errorf("check verifier role: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("caller %q is not a verifier: %w", caller, ErrUnauthorized)
	}
	if err := validateMeasurements(ph, tds, turbidity, temperature); err != nil {
		return 0, err
	}

	rec := &QualityRecord{
		Location:    location,
		PH:          ph,
		TDS:         tds,
		Turbidity:   turbidity,
		Temperature: temperature,
		IsSafe:      EvaluateSafety(ph, tds, turbidity),
		Verifier:    caller,
		RecordedAt:  l.clock.Now(),
	}

	id, err := l.store.AppendQuality(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("append quality record: %w", err)
	}

	if rec.IsSafe {
		l.logger.Info("quality recorded",
			zap.Uint64("quality_id", id),
			zap.String("location", location),
			zap.String("verifier", caller),
		)
	} else {
		l.logger.Warn("unsafe water quality recorded",
			zap.Uint64("quality_id", id),
			zap.String("location", location),
			zap.Int64("ph", ph),
			zap.Int64("tds", tds),
			zap.Int64("turbidity", turbidity),
			zap.String("verifier", caller),
		)
	}

	l.emit(ctx, newEvent(EventQualityRecorded, rec.RecordedAt, map[string]string{
		"quality_id": strconv.FormatUint(id, 10),
		"location":   location,
		"is_safe":    strconv.FormatBool(rec.IsSafe),
		"verifier":   caller,
	}))
	return id, nil
}

// Quality returns the quality record with the given ID. Open read.
func (l *Ledger) Quality(ctx context.Context, id uint64) (*QualityRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, err := l.store.Quality(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("quality %d: %w", id, ErrInvalidReference)
	}
	return rec, err
}

// QualityCount returns the number of quality records. Open read.
func (l *Ledger) QualityCount(ctx context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.QualityCount(ctx)
}

// HistoryAt returns every quality record ID for a location, oldest first.
// Unknown locations yield an empty history. Open read.
func (l *Ledger) HistoryAt(ctx context.Context, location string) ([]uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.HistoryAt(ctx, location)
}

// LatestSafetyAt returns the stored verdict and ID of the most recently
// appended quality record for a location, or (false, 0) when the location
// has none. The verdict is read back as stored, never re-evaluated. Open read.
func (l *Ledger) LatestSafetyAt(ctx context.Context, location string) (bool, uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	id, err := l.store.LatestAt(ctx, location)
	if err != nil {
		return false, 0, fmt.Errorf("latest at %q: %w", location, err)
	}
	if id == 0 {
		return false, 0, nil
	}
	rec, err := l.store.Quality(ctx, id)
	if err != nil {
		return false, 0, fmt.Errorf("quality %d: %w", id, err)
	}
	return rec.IsSafe, id, nil
}

// TrackDistribution appends a distribution backed by a safe quality record
// and returns its ID. The caller must hold the distributor role, quantity
// must be positive, and qualityRef must resolve to a record whose stored
// verdict is safe.
func (l *Ledger) TrackDistribution(ctx context.Context, caller, source, destination string, quantity int64, qualityRef uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.access.IsDistributor(ctx, caller)
	if err != nil {
		return 0, fmt.Errorf("check distributor role: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("caller %q is not a distributor: %w", caller, ErrUnauthorized)
	}
	if quantity <= 0 {
		return 0, &ErrInvalidParameter{Field: "quantity"}
	}

	qrec, err := l.store.Quality(ctx, qualityRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, fmt.Errorf("quality %d: %w", qualityRef, ErrInvalidReference)
		}
		return 0, fmt.Errorf("resolve quality %d: %w", qualityRef, err)
	}
	if !qrec.IsSafe {
		return 0, fmt.Errorf("quality %d: %w", qualityRef, ErrUnsafeSource)
	}

	rec := &DistributionRecord{
		Source:      source,
		Destination: destination,
		Quantity:    quantity,
		QualityRef:  qualityRef,
		Distributor: caller,
		CreatedAt:   l.clock.Now(),
	}

	id, err := l.store.AppendDistribution(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("append distribution record: %w", err)
	}

	l.logger.Info("distribution tracked",
		zap.Uint64("distribution_id", id),
		zap.String("source", source),
		zap.String("destination", destination),
		zap.Int64("quantity", quantity),
		zap.Uint64("quality_ref", qualityRef),
		zap.String("distributor", caller),
	)
	l.emit(ctx, newEvent(EventDistributionTracked, rec.CreatedAt, map[string]string{
		"distribution_id": strconv.FormatUint(id, 10),
		"source":          source,
		"destination":     destination,
		"quantity":        strconv.FormatInt(quantity, 10),
		"quality_ref":     strconv.FormatUint(qualityRef, 10),
		"distributor":     caller,
	}))
	return id, nil
}

// ConfirmDelivery closes a distribution's receiving leg. The checks run in
// a fixed order: the ID must resolve, the record must not already be
// delivered, and only then is the caller required to be the distributor who
// recorded it — so confirming an already-delivered record reports
// ErrAlreadyConfirmed no matter who asks.
func (l *Ledger) ConfirmDelivery(ctx context.Context, caller string, id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.store.Distribution(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("distribution %d: %w", id, ErrInvalidReference)
		}
		return fmt.Errorf("resolve distribution %d: %w", id, err)
	}
	if rec.Delivered {
		return fmt.Errorf("distribution %d: %w", id, ErrAlreadyConfirmed)
	}
	if caller != rec.Distributor {
		return fmt.Errorf("caller %q did not record distribution %d: %w", caller, id, ErrUnauthorized)
	}

	deliveredAt := l.clock.Now()
	if err := l.store.MarkDelivered(ctx, id, deliveredAt); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}

	l.logger.Info("delivery confirmed",
		zap.Uint64("distribution_id", id),
		zap.String("distributor", caller),
	)
	l.emit(ctx, newEvent(EventDeliveryConfirmed, deliveredAt, map[string]string{
		"distribution_id": strconv.FormatUint(id, 10),
		"distributor":     caller,
		"delivered_at":    strconv.FormatInt(deliveredAt, 10),
	}))
	return nil
}

// Distribution returns the distribution record with the given ID. Open read.
func (l *Ledger) Distribution(ctx context.Context, id uint64) (*DistributionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, err := l.store.Distribution(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("distribution %d: %w", id, ErrInvalidReference)
	}
	return rec, err
}

// DeliveryStatus returns the delivered flag for a distribution. Open read.
func (l *Ledger) DeliveryStatus(ctx context.Context, id uint64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, err := l.store.Distribution(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, fmt.Errorf("distribution %d: %w", id, ErrInvalidReference)
		}
		return false, err
	}
	return rec.Delivered, nil
}

// DistributionCount returns the number of distribution records. Open read.
func (l *Ledger) DistributionCount(ctx context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.DistributionCount(ctx)
}

// emit publishes a post-commit event. Emission is fire-and-forget; a nil
// sink drops events silently.
func (l *Ledger) emit(ctx context.Context, ev Event) {
	if l.sink == nil {
		return
	}
	l.sink.Publish(ctx, ev)
}
