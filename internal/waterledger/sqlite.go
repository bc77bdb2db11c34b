package waterledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore persists the ledger to an embedded SQLite database. It suits
// single-node deployments that need durability without running PostgreSQL.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS quality_records (
	id          INTEGER PRIMARY KEY,
	location    TEXT    NOT NULL,
	ph          INTEGER NOT NULL,
	tds         INTEGER NOT NULL,
	turbidity   INTEGER NOT NULL,
	temperature INTEGER NOT NULL,
	is_safe     BOOLEAN NOT NULL,
	verifier    TEXT    NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quality_location ON quality_records (location, id);

CREATE TABLE IF NOT EXISTS distribution_records (
	id           INTEGER PRIMARY KEY,
	source       TEXT    NOT NULL,
	destination  TEXT    NOT NULL,
	quantity     INTEGER NOT NULL,
	quality_ref  INTEGER NOT NULL,
	distributor  TEXT    NOT NULL,
	delivered    BOOLEAN NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	delivered_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS roles (
	role    TEXT NOT NULL,
	account TEXT NOT NULL,
	PRIMARY KEY (role, account)
);

CREATE TABLE IF NOT EXISTS ledger_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// OpenSQLite opens (creating if necessary) the SQLite ledger at path and
// ensures the schema exists.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY errors under concurrent appends.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so other stores, such as the identity
// credential store, can share the single-connection pool.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// InitGenesis implements Store.
func (s *SQLiteStore) InitGenesis(ctx context.Context, owner string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT value FROM ledger_meta WHERE key = 'owner'`).Scan(&existing)
	switch {
	case err == nil:
		if existing == owner {
			return nil
		}
		return fmt.Errorf("ledger already initialised with owner %q", existing)
	case errors.Is(err, sql.ErrNoRows):
		// fresh ledger, continue
	default:
		return fmt.Errorf("read owner: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_meta (key, value) VALUES ('owner', ?)`, owner,
	); err != nil {
		return fmt.Errorf("set owner: %w", err)
	}
	for _, role := range []Role{RoleVerifier, RoleDistributor} {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO roles (role, account) VALUES (?, ?)`, string(role), owner,
		); err != nil {
			return fmt.Errorf("seed %s role: %w", role, err)
		}
	}
	return tx.Commit()
}

// Owner implements Store.
func (s *SQLiteStore) Owner(ctx context.Context) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ledger_meta WHERE key = 'owner'`).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read owner: %w", err)
	}
	return owner, nil
}

// SetRole implements Store.
func (s *SQLiteStore) SetRole(ctx context.Context, role Role, account string, member bool) error {
	var err error
	if member {
		_, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO roles (role, account) VALUES (?, ?)`, string(role), account)
	} else {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM roles WHERE role = ? AND account = ?`, string(role), account)
	}
	if err != nil {
		return fmt.Errorf("set role %s for %q: %w", role, account, err)
	}
	return nil
}

// HasRole implements Store.
func (s *SQLiteStore) HasRole(ctx context.Context, role Role, account string) (bool, error) {
	var member bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE role = ? AND account = ?)`,
		string(role), account,
	).Scan(&member); err != nil {
		return false, fmt.Errorf("check role %s for %q: %w", role, account, err)
	}
	return member, nil
}

// AppendQuality implements Store. The next ID is read and the row inserted
// inside one transaction so the sequence stays dense.
func (s *SQLiteStore) AppendQuality(ctx context.Context, rec *QualityRecord) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var max uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM quality_records`,
	).Scan(&max); err != nil {
		return 0, fmt.Errorf("read quality tail: %w", err)
	}
	rec.ID = max + 1

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO quality_records (id, location, ph, tds, turbidity, temperature, is_safe, verifier, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Location, rec.PH, rec.TDS, rec.Turbidity, rec.Temperature,
		rec.IsSafe, rec.Verifier, rec.RecordedAt,
	); err != nil {
		return 0, fmt.Errorf("insert quality record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit quality record: %w", err)
	}

	s.logger.Debug("quality record appended", zap.Uint64("id", rec.ID), zap.String("location", rec.Location))
	return rec.ID, nil
}

// Quality implements Store.
func (s *SQLiteStore) Quality(ctx context.Context, id uint64) (*QualityRecord, error) {
	rec := &QualityRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, location, ph, tds, turbidity, temperature, is_safe, verifier, recorded_at
		 FROM quality_records WHERE id = ?`, id,
	).Scan(
		&rec.ID, &rec.Location, &rec.PH, &rec.TDS, &rec.Turbidity,
		&rec.Temperature, &rec.IsSafe, &rec.Verifier, &rec.RecordedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quality %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get quality %d: %w", id, err)
	}
	return rec, nil
}

// QualityCount implements Store.
func (s *SQLiteStore) QualityCount(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quality_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count quality records: %w", err)
	}
	return n, nil
}

// HistoryAt implements Store. The (location, id) index keeps this a range
// scan in insertion order.
func (s *SQLiteStore) HistoryAt(ctx context.Context, location string) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM quality_records WHERE location = ? ORDER BY id ASC`, location)
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
func (s *SQLiteStore) LatestAt(ctx context.Context, location string) (uint64, error) {
	var id uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM quality_records WHERE location = ? ORDER BY id DESC LIMIT 1`, location,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest at %q: %w", location, err)
	}
	return id, nil
}

// AppendDistribution implements Store.
func (s *SQLiteStore) AppendDistribution(ctx context.Context, rec *DistributionRecord) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var max uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM distribution_records`,
	).Scan(&max); err != nil {
		return 0, fmt.Errorf("read distribution tail: %w", err)
	}
	rec.ID = max + 1

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO distribution_records (id, source, destination, quantity, quality_ref, distributor, delivered, created_at, delivered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Destination, rec.Quantity, rec.QualityRef,
		rec.Distributor, rec.Delivered, rec.CreatedAt, rec.DeliveredAt,
	); err != nil {
		return 0, fmt.Errorf("insert distribution record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit distribution record: %w", err)
	}

	s.logger.Debug("distribution record appended", zap.Uint64("id", rec.ID))
	return rec.ID, nil
}

// Distribution implements Store.
func (s *SQLiteStore) Distribution(ctx context.Context, id uint64) (*DistributionRecord, error) {
	rec := &DistributionRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, destination, quantity, quality_ref, distributor, delivered, created_at, delivered_at
		 FROM distribution_records WHERE id = ?`, id,
	).Scan(
		&rec.ID, &rec.Source, &rec.Destination, &rec.Quantity, &rec.QualityRef,
		&rec.Distributor, &rec.Delivered, &rec.CreatedAt, &rec.DeliveredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("distribution %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution %d: %w", id, err)
	}
	return rec, nil
}

// DistributionCount implements Store.
func (s *SQLiteStore) DistributionCount(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM distribution_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count distribution records: %w", err)
	}
	return n, nil
}

// MarkDelivered implements Store. The delivered guard is part of the UPDATE
// so the transition stays one-time even with several processes on one file.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, id uint64, deliveredAt int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE distribution_records SET delivered = 1, delivered_at = ? WHERE id = ? AND delivered = 0`,
		deliveredAt, id)
	if err != nil {
		return fmt.Errorf("mark delivered %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: either the ID is unknown or it was already delivered.
	var delivered bool
	err = s.db.QueryRowContext(ctx,
		`SELECT delivered FROM distribution_records WHERE id = ?`, id).Scan(&delivered)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("distribution %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get distribution %d: %w", id, err)
	}
	return ErrAlreadyConfirmed
}
