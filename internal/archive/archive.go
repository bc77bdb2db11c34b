// Package archive takes periodic JSON snapshots of the ledger and uploads
// them to object storage for regulatory retention. Snapshots are plain
// marshalled records, readable without AquaTrace tooling.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/aquatrace/aquatrace/internal/waterledger"
)

// objectPutter uploads one object. Satisfied by *S3Uploader.
type objectPutter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// snapshotStore is the read-only store subset the archiver walks.
type snapshotStore interface {
	Owner(ctx context.Context) (string, error)
	QualityCount(ctx context.Context) (uint64, error)
	Quality(ctx context.Context, id uint64) (*waterledger.QualityRecord, error)
	DistributionCount(ctx context.Context) (uint64, error)
	Distribution(ctx context.Context, id uint64) (*waterledger.DistributionRecord, error)
}

// Snapshot is the archived document.
type Snapshot struct {
	TakenAt       time.Time                         `json:"taken_at"`
	Owner         string                            `json:"owner"`
	Quality       []*waterledger.QualityRecord      `json:"quality_records"`
	Distributions []*waterledger.DistributionRecord `json:"distribution_records"`
}

// Config holds archiver configuration.
type Config struct {
	Interval time.Duration
	Prefix   string // object key prefix (default "snapshots")
}

// Archiver periodically snapshots the ledger into object storage.
type Archiver struct {
	store  snapshotStore
	putter objectPutter
	cfg    Config
	logger *zap.Logger
}

// New creates an Archiver.
func New(store snapshotStore, putter objectPutter, cfg Config, logger *zap.Logger) *Archiver {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "snapshots"
	}
	return &Archiver{store: store, putter: putter, cfg: cfg, logger: logger}
}

// Start runs the snapshot loop until quit is signalled.
func (a *Archiver) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := a.RunOnce(ctx); err != nil {
				a.logger.Error("archive: snapshot failed", zap.Error(err))
			}
			cancel()
		case <-quit:
			return
		}
	}
}

// RunOnce takes one snapshot and uploads it, returning the object key.
func (a *Archiver) RunOnce(ctx context.Context) (string, error) {
	snap, err := a.build(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("%s/ledger-%s.json", a.cfg.Prefix, snap.TakenAt.Format("20060102T150405Z"))
	if err := a.putter.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}

	a.logger.Info("ledger snapshot archived",
		zap.String("key", key),
		zap.Int("quality_records", len(snap.Quality)),
		zap.Int("distribution_records", len(snap.Distributions)),
	)
	return key, nil
}

// build walks both record sequences into a Snapshot.
func (a *Archiver) build(ctx context.Context) (*Snapshot, error) {
	owner, err := a.store.Owner(ctx)
	if err != nil {
		return nil, fmt.Errorf("read owner: %w", err)
	}

	snap := &Snapshot{
		TakenAt:       time.Now().UTC(),
		Owner:         owner,
		Quality:       []*waterledger.QualityRecord{},
		Distributions: []*waterledger.DistributionRecord{},
	}

	qcount, err := a.store.QualityCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("quality count: %w", err)
	}
	for id := uint64(1); id <= qcount; id++ {
		rec, err := a.store.Quality(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("quality %d: %w", id, err)
		}
		snap.Quality = append(snap.Quality, rec)
	}

	dcount, err := a.store.DistributionCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("distribution count: %w", err)
	}
	for id := uint64(1); id <= dcount; id++ {
		rec, err := a.store.Distribution(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("distribution %d: %w", id, err)
		}
		snap.Distributions = append(snap.Distributions, rec)
	}

	return snap, nil
}
