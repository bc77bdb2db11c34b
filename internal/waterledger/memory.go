package waterledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for single-process deployments that do
// not require durable persistence across restarts.
//
// Records live in slices where the element at index i holds ID i+1, so ID
// assignment, gap-freedom and ordered iteration all fall out of append.
type MemoryStore struct {
	mu            sync.RWMutex
	owner         string
	roles         map[Role]map[string]bool
	quality       []QualityRecord
	distributions []DistributionRecord
	locations     map[string][]uint64
}

// NewMemoryStore creates an empty MemoryStore. The ledger is unowned until
// InitGenesis runs.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles: map[Role]map[string]bool{
			RoleVerifier:    {},
			RoleDistributor: {},
		},
		locations: make(map[string][]uint64),
	}
}

// InitGenesis implements Store.
func (s *MemoryStore) InitGenesis(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != "" {
		if s.owner == owner {
			return nil
		}
		return fmt.Errorf("ledger already initialised with owner %q", s.owner)
	}
	s.owner = owner
	s.roles[RoleVerifier][owner] = true
	s.roles[RoleDistributor][owner] = true
	return nil
}

// Owner implements Store.
func (s *MemoryStore) Owner(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, nil
}

// SetRole implements Store.
func (s *MemoryStore) SetRole(_ context.Context, role Role, account string, member bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.roles[role]
	if !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	if member {
		set[account] = true
	} else {
		delete(set, account)
	}
	return nil
}

// HasRole implements Store.
func (s *MemoryStore) HasRole(_ context.Context, role Role, account string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[role][account], nil
}

// AppendQuality implements Store.
func (s *MemoryStore) AppendQuality(_ context.Context, rec *QualityRecord) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uint64(len(s.quality)) + 1
	rec.ID = id
	s.quality = append(s.quality, *rec)
	s.locations[rec.Location] = append(s.locations[rec.Location], id)
	return id, nil
}

// Quality implements Store. The returned record is a copy; stored records
// are never handed out by reference.
func (s *MemoryStore) Quality(_ context.Context, id uint64) (*QualityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == 0 || id > uint64(len(s.quality)) {
		return nil, fmt.Errorf("quality %d: %w", id, ErrNotFound)
	}
	rec := s.quality[id-1]
	return &rec, nil
}

// QualityCount implements Store.
func (s *MemoryStore) QualityCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.quality)), nil
}

// HistoryAt implements Store.
func (s *MemoryStore) HistoryAt(_ context.Context, location string) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.locations[location]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out, nil
}

// LatestAt implements Store.
func (s *MemoryStore) LatestAt(_ context.Context, location string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.locations[location]
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[len(ids)-1], nil
}

// AppendDistribution implements Store.
func (s *MemoryStore) AppendDistribution(_ context.Context, rec *DistributionRecord) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uint64(len(s.distributions)) + 1
	rec.ID = id
	s.distributions = append(s.distributions, *rec)
	return id, nil
}

// Distribution implements Store. The returned record is a copy.
func (s *MemoryStore) Distribution(_ context.Context, id uint64) (*DistributionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == 0 || id > uint64(len(s.distributions)) {
		return nil, fmt.Errorf("distribution %d: %w", id, ErrNotFound)
	}
	rec := s.distributions[id-1]
	return &rec, nil
}

// DistributionCount implements Store.
func (s *MemoryStore) DistributionCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.distributions)), nil
}

// MarkDelivered implements Store.
func (s *MemoryStore) MarkDelivered(_ context.Context, id uint64, deliveredAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 || id > uint64(len(s.distributions)) {
		return fmt.Errorf("distribution %d: %w", id, ErrNotFound)
	}
	rec := &s.distributions[id-1]
	if rec.Delivered {
		return ErrAlreadyConfirmed
	}
	rec.Delivered = true
	rec.DeliveredAt = deliveredAt
	return nil
}
