package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound is returned when no credential exists for an identity.
var ErrNotFound = errors.New("identity not found")

// ErrBadCredentials is returned when an access key does not match the
// stored hash. It is deliberately indistinguishable from an unknown
// identity at the HTTP layer.
var ErrBadCredentials = errors.New("invalid credentials")

// Credential is an enrolled identity's stored access-key hash.
// The access key itself is shown once at enrollment and never stored.
type Credential struct {
	Identity  string    `json:"identity" db:"identity"`
	KeyHash   string    `json:"-" db:"key_hash"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CredentialStore persists enrolled identities.
type CredentialStore interface {
	// Put inserts or replaces the credential for cred.Identity.
	Put(ctx context.Context, cred *Credential) error
	// Get returns the credential for identity, or ErrNotFound.
	Get(ctx context.Context, identity string) (*Credential, error)
	// List returns all enrolled identities, oldest first.
	List(ctx context.Context) ([]*Credential, error)
}

// Registrar enrolls ledger identities and exchanges their access keys for
// caller tokens. Enrollment is an admin operation; the returned access key
// is the identity's long-lived secret and is delivered exactly once.
type Registrar struct {
	store  CredentialStore
	tokens *TokenIssuer
	logger *zap.Logger
}

// NewRegistrar creates a Registrar backed by store.
func NewRegistrar(store CredentialStore, tokens *TokenIssuer, logger *zap.Logger) *Registrar {
	return &Registrar{store: store, tokens: tokens, logger: logger}
}

// Enroll registers identity and returns its freshly generated access key.
// Enrolling an already known identity rotates the key: the previous one
// stops working immediately.
func (r *Registrar) Enroll(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("identity is required")
	}

	key, err := generateAccessKey()
	if err != nil {
		return "", fmt.Errorf("generate access key: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash access key: %w", err)
	}

	cred := &Credential{
		Identity:  identity,
		KeyHash:   string(hash),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Put(ctx, cred); err != nil {
		return "", fmt.Errorf("store credential: %w", err)
	}

	r.logger.Info("identity enrolled", zap.String("identity", identity))
	return key, nil
}

// IssueToken verifies identity's access key and returns a signed caller token.
func (r *Registrar) IssueToken(ctx context.Context, identity, accessKey string) (string, error) {
	cred, err := r.store.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrBadCredentials
		}
		return "", fmt.Errorf("lookup credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.KeyHash), []byte(accessKey)); err != nil {
		return "", ErrBadCredentials
	}

	token, err := r.tokens.Issue(identity)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	r.logger.Debug("caller token issued", zap.String("identity", identity))
	return token, nil
}

// List returns all enrolled identities.
func (r *Registrar) List(ctx context.Context) ([]*Credential, error) {
	return r.store.List(ctx)
}

func generateAccessKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
