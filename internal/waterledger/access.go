package waterledger

import (
	"context"
	"fmt"
)

// roleStore is the slice of Store the access registry needs. Any Store
// satisfies it.
type roleStore interface {
	InitGenesis(ctx context.Context, owner string) error
	Owner(ctx context.Context) (string, error)
	SetRole(ctx context.Context, role Role, account string, member bool) error
	HasRole(ctx context.Context, role Role, account string) (bool, error)
}

// AccessRegistry guards the owner singleton and the two role sets. Grant
// and revoke are owner-only and idempotent: granting a role an account
// already holds, or revoking one it does not, succeeds without change.
// Membership checks and Owner are open reads.
type AccessRegistry struct {
	store roleStore
}

// NewAccessRegistry creates an AccessRegistry over the given store.
func NewAccessRegistry(store roleStore) *AccessRegistry {
	return &AccessRegistry{store: store}
}

// Init establishes the genesis owner. The owner starts as a member of both
// role sets so a fresh ledger is immediately usable by its operator.
func (r *AccessRegistry) Init(ctx context.Context, owner string) error {
	if owner == "" {
		return &ErrInvalidParameter{Field: "owner"}
	}
	return r.store.InitGenesis(ctx, owner)
}

// Owner returns the genesis owner identity.
func (r *AccessRegistry) Owner(ctx context.Context) (string, error) {
	return r.store.Owner(ctx)
}

// Grant adds account to the role set. Only the owner may grant.
func (r *AccessRegistry) Grant(ctx context.Context, caller, account string, role Role) error {
	if err := r.requireOwner(ctx, caller); err != nil {
		return err
	}
	return r.store.SetRole(ctx, role, account, true)
}

// Revoke removes account from the role set. Only the owner may revoke.
// Revoking the owner's own membership is permitted; ownership itself is
// not a role and cannot be surrendered.
func (r *AccessRegistry) Revoke(ctx context.Context, caller, account string, role Role) error {
	if err := r.requireOwner(ctx, caller); err != nil {
		return err
	}
	return r.store.SetRole(ctx, role, account, false)
}

// HasRole reports role membership for any account.
func (r *AccessRegistry) HasRole(ctx context.Context, role Role, account string) (bool, error) {
	return r.store.HasRole(ctx, role, account)
}

// IsVerifier reports whether account may record quality measurements.
func (r *AccessRegistry) IsVerifier(ctx context.Context, account string) (bool, error) {
	return r.store.HasRole(ctx, RoleVerifier, account)
}

// IsDistributor reports whether account may track distributions.
func (r *AccessRegistry) IsDistributor(ctx context.Context, account string) (bool, error) {
	return r.store.HasRole(ctx, RoleDistributor, account)
}

func (r *AccessRegistry) requireOwner(ctx context.Context, caller string) error {
	owner, err := r.store.Owner(ctx)
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}
	// An uninitialised ledger has no owner, so nobody is authorized.
	if owner == "" || caller != owner {
		return fmt.Errorf("caller %q is not the owner: %w", caller, ErrUnauthorized)
	}
	return nil
}
