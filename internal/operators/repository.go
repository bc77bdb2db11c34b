package operators

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an operator lookup finds no matching record.
var ErrNotFound = errors.New("operator not found")

// ErrDuplicateEmail is returned when a signup attempts to reuse a
// registered email.
var ErrDuplicateEmail = errors.New("email already registered")

// PostgresRepository provides operator persistence against PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new operator record. Sets ID, CreatedAt, UpdatedAt.
func (r *PostgresRepository) Create(ctx context.Context, op *Operator) error {
	op.ID = uuid.New()
	now := time.Now().UTC()
	op.CreatedAt = now
	op.UpdatedAt = now

	q := `
		INSERT INTO operators (id, email, password_hash, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, q,
		op.ID, op.Email, op.PasswordHash, op.Name, op.CreatedAt, op.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create operator: %w", err)
	}
	return nil
}

// GetByID retrieves an operator by internal UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Operator, error) {
	return r.scanOne(ctx,
		`SELECT id, email, password_hash, name, created_at, updated_at FROM operators WHERE id = $1`, id)
}

// GetByEmail retrieves an operator by email address.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Operator, error) {
	return r.scanOne(ctx,
		`SELECT id, email, password_hash, name, created_at, updated_at FROM operators WHERE email = $1`, email)
}

// GetByOAuth retrieves the operator linked to an OAuth provider identity.
func (r *PostgresRepository) GetByOAuth(ctx context.Context, provider, providerID string) (*Operator, error) {
	q := `
		SELECT o.id, o.email, o.password_hash, o.name, o.created_at, o.updated_at
		FROM operators o
		JOIN operator_oauth l ON l.operator_id = o.id
		WHERE l.provider = $1 AND l.provider_id = $2`
	return r.scanOne(ctx, q, provider, providerID)
}

// LinkOAuth adds an OAuth provider link to an existing operator.
// Duplicate links are silently ignored.
func (r *PostgresRepository) LinkOAuth(ctx context.Context, operatorID uuid.UUID, provider, providerID string) error {
	q := `
		INSERT INTO operator_oauth (id, operator_id, provider, provider_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, provider_id) DO NOTHING`
	_, err := r.db.Exec(ctx, q, uuid.New(), operatorID, provider, providerID, time.Now().UTC())
	return err
}

func (r *PostgresRepository) scanOne(ctx context.Context, q string, args ...any) (*Operator, error) {
	var op Operator
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&op.ID, &op.Email, &op.PasswordHash, &op.Name, &op.CreatedAt, &op.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan operator: %w", err)
	}
	return &op, nil
}
