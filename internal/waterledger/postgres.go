package waterledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Advisory lock keys used to serialise concurrent appends to each record
// sequence. The values are arbitrary but must be consistent across all node
// instances sharing a database.
const (
	qualityAppendLockKey      = int64(7_301_551_001)
	distributionAppendLockKey = int64(7_301_551_002)
)

// PostgresStore persists the ledger to PostgreSQL. It implements Store.
//
// IDs are assigned by reading the sequence tail inside a transaction that
// holds an advisory lock, not by a SERIAL column: a sequence would leave
// gaps whenever a transaction rolls back, and the ID sequences must stay
// dense.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// InitGenesis implements Store.
func (s *PostgresStore) InitGenesis(ctx context.Context, owner string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var existing string
	err = tx.QueryRow(ctx, `SELECT value FROM ledger_meta WHERE key = 'owner'`).Scan(&existing)
	switch {
	case err == nil:
		if existing == owner {
			return nil
		}
		return fmt.Errorf("ledger already initialised with owner %q", existing)
	case errors.Is(err, pgx.ErrNoRows):
		// fresh ledger, continue
	default:
		return fmt.Errorf("read owner: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_meta (key, value) VALUES ('owner', $1)`, owner,
	); err != nil {
		return fmt.Errorf("set owner: %w", err)
	}
	for _, role := range []Role{RoleVerifier, RoleDistributor} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO roles (role, account) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			string(role), owner,
		); err != nil {
			return fmt.Errorf("seed %s role: %w", role, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}

	s.logger.Info("genesis committed", zap.String("owner", owner))
	return nil
}

// Owner implements Store.
func (s *PostgresStore) Owner(ctx context.Context) (string, error) {
	var owner string
	err := s.pool.QueryRow(ctx, `SELECT value FROM ledger_meta WHERE key = 'owner'`).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read owner: %w", err)
	}
	return owner, nil
}

// SetRole implements Store.
func (s *PostgresStore) SetRole(ctx context.Context, role Role, account string, member bool) error {
	var err error
	if member {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO roles (role, account) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			string(role), account)
	} else {
		_, err = s.pool.Exec(ctx,
			`DELETE FROM roles WHERE role = $1 AND account = $2`, string(role), account)
	}
	if err != nil {
		return fmt.Errorf("set role %s for %q: %w", role, account, err)
	}
	return nil
}

// HasRole implements Store.
func (s *PostgresStore) HasRole(ctx context.Context, role Role, account string) (bool, error) {
	var member bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE role = $1 AND account = $2)`,
		string(role), account,
	).Scan(&member); err != nil {
		return false, fmt.Errorf("check role %s for %q: %w", role, account, err)
	}
	return member, nil
}

// AppendQuality implements Store.
// It acquires an advisory lock, reads the sequence tail, and inserts the
// record under the next ID — all within a single transaction.
func (s *PostgresStore) AppendQuality(ctx context.Context, rec *QualityRecord) (uint64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent appends with a transaction-scoped advisory lock.
	// The lock is released automatically at commit or rollback.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", qualityAppendLockKey); err != nil {
		return 0, fmt.Errorf("acquire advisory lock: %w", err)
	}

	next, err := nextID(ctx, tx, "quality_records")
	if err != nil {
		return 0, err
	}
	rec.ID = next

	if _, err := tx.Exec(ctx,
		`INSERT INTO quality_records (id, location, ph, tds, turbidity, temperature, is_safe, verifier, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Location, rec.PH, rec.TDS, rec.Turbidity, rec.Temperature,
		rec.IsSafe, rec.Verifier, rec.RecordedAt,
	); err != nil {
		return 0, fmt.Errorf("insert quality record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit quality record: %w", err)
	}

	s.logger.Debug("quality record appended",
		zap.Uint64("id", rec.ID),
		zap.String("location", rec.Location),
		zap.Bool("is_safe", rec.IsSafe),
	)
	return rec.ID, nil
}

// Quality implements Store.
func (s *PostgresStore) Quality(ctx context.Context, id uint64) (*QualityRecord, error) {
	rec := &QualityRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, location, ph, tds, turbidity, temperature, is_safe, verifier, recorded_at
		 FROM quality_records WHERE id = $1`, id,
	).Scan(
		&rec.ID, &rec.Location, &rec.PH, &rec.TDS, &rec.Turbidity,
		&rec.Temperature, &rec.IsSafe, &rec.Verifier, &rec.RecordedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("quality %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get quality %d: %w", id, err)
	}
	return rec, nil
}

// QualityCount implements Store.
func (s *PostgresStore) QualityCount(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quality_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count quality records: %w", err)
	}
	return n, nil
}

// HistoryAt implements Store.
func (s *PostgresStore) HistoryAt(ctx context.Context, location string) ([]uint64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM quality_records WHERE location = $1 ORDER BY id ASC`, location)
	if err != nil {
		return nil, fmt.Errorf("query history at %q: %w", location, err)
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestAt implements Store.
func (s *PostgresStore) LatestAt(ctx context.Context, location string) (uint64, error) {
	var id uint64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM quality_records WHERE location = $1 ORDER BY id DESC LIMIT 1`, location,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest at %q: %w", location, err)
	}
	return id, nil
}

// AppendDistribution implements Store.
func (s *PostgresStore) AppendDistribution(ctx context.Context, rec *DistributionRecord) (uint64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", distributionAppendLockKey); err != nil {
		return 0, fmt.Errorf("acquire advisory lock: %w", err)
	}

	next, err := nextID(ctx, tx, "distribution_records")
	if err != nil {
		return 0, err
	}
	rec.ID = next

	if _, err := tx.Exec(ctx,
		`INSERT INTO distribution_records (id, source, destination, quantity, quality_ref, distributor, delivered, created_at, delivered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Source, rec.Destination, rec.Quantity, rec.QualityRef,
		rec.Distributor, rec.Delivered, rec.CreatedAt, rec.DeliveredAt,
	); err != nil {
		return 0, fmt.Errorf("insert distribution record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit distribution record: %w", err)
	}

	s.logger.Debug("distribution record appended",
		zap.Uint64("id", rec.ID),
		zap.Uint64("quality_ref", rec.QualityRef),
	)
	return rec.ID, nil
}

// Distribution implements Store.
func (s *PostgresStore) Distribution(ctx context.Context, id uint64) (*DistributionRecord, error) {
	rec := &DistributionRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, destination, quantity, quality_ref, distributor, delivered, created_at, delivered_at
		 FROM distribution_records WHERE id = $1`, id,
	).Scan(
		&rec.ID, &rec.Source, &rec.Destination, &rec.Quantity, &rec.QualityRef,
		&rec.Distributor, &rec.Delivered, &rec.CreatedAt, &rec.DeliveredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("distribution %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution %d: %w", id, err)
	}
	return rec, nil
}

// DistributionCount implements Store.
func (s *PostgresStore) DistributionCount(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM distribution_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count distribution records: %w", err)
	}
	return n, nil
}

// MarkDelivered implements Store. The delivered guard lives in the UPDATE's
// WHERE clause so the transition is one-time across all node instances.
func (s *PostgresStore) MarkDelivered(ctx context.Context, id uint64, deliveredAt int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE distribution_records SET delivered = TRUE, delivered_at = $2
		 WHERE id = $1 AND delivered = FALSE`,
		id, deliveredAt)
	if err != nil {
		return fmt.Errorf("mark delivered %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: either the ID is unknown or it was already delivered.
	var delivered bool
	err = s.pool.QueryRow(ctx,
		`SELECT delivered FROM distribution_records WHERE id = $1`, id).Scan(&delivered)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("distribution %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get distribution %d: %w", id, err)
	}
	return ErrAlreadyConfirmed
}

// nextID reads the current tail of a record sequence inside tx and returns
// the next dense ID. Callers must already hold the sequence's advisory lock.
func nextID(ctx context.Context, tx pgx.Tx, table string) (uint64, error) {
	var id uint64
	err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT id FROM %s ORDER BY id DESC LIMIT 1`, table),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s tail: %w", table, err)
	}
	return id + 1, nil
}
