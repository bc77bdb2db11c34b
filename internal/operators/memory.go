package operators

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory operator store for single-node memory
// deployments and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Operator
	byEmail map[string]uuid.UUID
	oauth   map[string]uuid.UUID // "provider:providerID" -> operatorID
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[uuid.UUID]*Operator),
		byEmail: make(map[string]uuid.UUID),
		oauth:   make(map[string]uuid.UUID),
	}
}

// Create inserts a new operator record. Sets ID, CreatedAt, UpdatedAt.
func (r *MemoryRepository) Create(_ context.Context, op *Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[op.Email]; exists {
		return ErrDuplicateEmail
	}
	op.ID = uuid.New()
	now := time.Now().UTC()
	op.CreatedAt = now
	op.UpdatedAt = now
	cp := *op
	r.byID[op.ID] = &cp
	r.byEmail[op.Email] = op.ID
	return nil
}

// GetByID retrieves an operator by internal UUID.
func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *op
	return &cp, nil
}

// GetByEmail retrieves an operator by email address.
func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

// GetByOAuth retrieves the operator linked to an OAuth provider identity.
func (r *MemoryRepository) GetByOAuth(_ context.Context, provider, providerID string) (*Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.oauth[provider+":"+providerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

// LinkOAuth adds an OAuth provider link to an existing operator.
func (r *MemoryRepository) LinkOAuth(_ context.Context, operatorID uuid.UUID, provider, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oauth[provider+":"+providerID] = operatorID
	return nil
}
