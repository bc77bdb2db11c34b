package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MemoryCredentialStore is an in-memory CredentialStore for development
// and tests.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewMemoryCredentialStore creates an empty MemoryCredentialStore.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]Credential)}
}

// Put implements CredentialStore.
func (s *MemoryCredentialStore) Put(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.Identity] = *cred
	return nil
}

// Get implements CredentialStore.
func (s *MemoryCredentialStore) Get(_ context.Context, identity string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[identity]
	if !ok {
		return nil, ErrNotFound
	}
	return &cred, nil
}

// List implements CredentialStore.
func (s *MemoryCredentialStore) List(_ context.Context) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Credential, 0, len(s.creds))
	for _, cred := range s.creds {
		c := cred
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Identity < out[j].Identity
	})
	return out, nil
}

// SQLiteCredentialStore persists credentials in the node's SQLite database.
// It shares the *sql.DB opened for the ledger store.
type SQLiteCredentialStore struct {
	db *sql.DB
}

// NewSQLiteCredentialStore creates the identities table if needed and
// returns a store backed by db.
func NewSQLiteCredentialStore(db *sql.DB) (*SQLiteCredentialStore, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS identities (
    identity   TEXT PRIMARY KEY,
    key_hash   TEXT NOT NULL,
    created_at INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create identities table: %w", err)
	}
	return &SQLiteCredentialStore{db: db}, nil
}

// Put implements CredentialStore.
func (s *SQLiteCredentialStore) Put(ctx context.Context, cred *Credential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO identities (identity, key_hash, created_at) VALUES (?, ?, ?)`,
		cred.Identity, cred.KeyHash, cred.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// Get implements CredentialStore.
func (s *SQLiteCredentialStore) Get(ctx context.Context, identity string) (*Credential, error) {
	var cred Credential
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT identity, key_hash, created_at FROM identities WHERE identity = ?`,
		identity).Scan(&cred.Identity, &cred.KeyHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	cred.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &cred, nil
}

// List implements CredentialStore.
func (s *SQLiteCredentialStore) List(ctx context.Context) ([]*Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, key_hash, created_at FROM identities ORDER BY created_at, identity`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*Credential
	for rows.Next() {
		var cred Credential
		var createdAt int64
		if err := rows.Scan(&cred.Identity, &cred.KeyHash, &createdAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		cred.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &cred)
	}
	return out, rows.Err()
}

// PostgresCredentialStore persists credentials in PostgreSQL.
// The identities table is created by the migrations.
type PostgresCredentialStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCredentialStore returns a store backed by pool.
func NewPostgresCredentialStore(pool *pgxpool.Pool) *PostgresCredentialStore {
	return &PostgresCredentialStore{pool: pool}
}

// Put implements CredentialStore.
func (s *PostgresCredentialStore) Put(ctx context.Context, cred *Credential) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO identities (identity, key_hash, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (identity) DO UPDATE SET key_hash = EXCLUDED.key_hash, created_at = EXCLUDED.created_at`,
		cred.Identity, cred.KeyHash, cred.CreatedAt)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// Get implements CredentialStore.
func (s *PostgresCredentialStore) Get(ctx context.Context, identity string) (*Credential, error) {
	var cred Credential
	err := s.pool.QueryRow(ctx,
		`SELECT identity, key_hash, created_at FROM identities WHERE identity = $1`,
		identity).Scan(&cred.Identity, &cred.KeyHash, &cred.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &cred, nil
}

// List implements CredentialStore.
func (s *PostgresCredentialStore) List(ctx context.Context) ([]*Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT identity, key_hash, created_at FROM identities ORDER BY created_at, identity`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		var cred Credential
		if err := rows.Scan(&cred.Identity, &cred.KeyHash, &cred.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, &cred)
	}
	return out, rows.Err()
}
