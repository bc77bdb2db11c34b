// Package audit runs periodic integrity checks over the ledger store.
//
// The ledger's invariants are cheap to state: record IDs are dense from 1,
// every distribution references a safe quality record, stored verdicts
// agree with the safety rule, and the location index lists exactly the
// records appended there, in order. The auditor walks the store and
// verifies all of them, surfacing violations through logs and a gauge
// rather than touching any record.
package audit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/aquatrace/aquatrace/internal/waterledger"
)

var (
	integrityGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aqua_ledger_integrity",
		Help: "1 when the last audit pass found no violations, 0 otherwise.",
	})
	auditRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqua_audit_runs_total",
		Help: "Number of completed audit passes.",
	})
)

// auditStore is the read-only store subset the auditor walks.
type auditStore interface {
	QualityCount(ctx context.Context) (uint64, error)
	Quality(ctx context.Context, id uint64) (*waterledger.QualityRecord, error)
	HistoryAt(ctx context.Context, location string) ([]uint64, error)
	DistributionCount(ctx context.Context) (uint64, error)
	Distribution(ctx context.Context, id uint64) (*waterledger.DistributionRecord, error)
}

// Config holds auditor configuration.
type Config struct {
	Interval time.Duration
}

// Auditor periodically verifies ledger invariants.
type Auditor struct {
	store  auditStore
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	lastRun   time.Time
	lastFault []string
}

// New creates an Auditor over store.
func New(store auditStore, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Auditor{store: store, cfg: cfg, logger: logger}
}

// Start runs the audit loop until quit is signalled.
func (a *Auditor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Interval-time.Second)
			a.RunOnce(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// LastResult returns the time of the last completed pass and any
// violations it found.
func (a *Auditor) LastResult() (time.Time, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRun, append([]string(nil), a.lastFault...)
}

// RunOnce performs a single audit pass and returns the violations found.
func (a *Auditor) RunOnce(ctx context.Context) []string {
	var faults []string

	qualityByLocation, qcount, qf := a.checkQuality(ctx)
	faults = append(faults, qf...)
	faults = append(faults, a.checkLocations(ctx, qualityByLocation)...)
	faults = append(faults, a.checkDistributions(ctx, qcount)...)

	a.mu.Lock()
	a.lastRun = time.Now().UTC()
	a.lastFault = faults
	a.mu.Unlock()

	auditRuns.Inc()
	if len(faults) == 0 {
		integrityGauge.Set(1)
		a.logger.Debug("audit pass clean",
			zap.Uint64("quality_records", qcount),
		)
	} else {
		integrityGauge.Set(0)
		for _, f := range faults {
			a.logger.Warn("audit violation", zap.String("fault", f))
		}
	}
	return faults
}

// checkQuality walks quality records 1..count, verifying density and that
// each stored verdict matches the safety rule. It returns the per-location
// ID lists for the index check.
func (a *Auditor) checkQuality(ctx context.Context) (map[string][]uint64, uint64, []string) {
	var faults []string
	byLocation := make(map[string][]uint64)

	count, err := a.store.QualityCount(ctx)
	if err != nil {
		return byLocation, 0, []string{fmt.Sprintf("quality count: %v", err)}
	}

	for id := uint64(1); id <= count; id++ {
		rec, err := a.store.Quality(ctx, id)
		if err != nil {
			faults = append(faults, fmt.Sprintf("quality %d missing: %v", id, err))
			continue
		}
		if rec.ID != id {
			faults = append(faults, fmt.Sprintf("quality %d carries ID %d", id, rec.ID))
		}
		if want := waterledger.EvaluateSafety(rec.PH, rec.TDS, rec.Turbidity); rec.IsSafe != want {
			faults = append(faults, fmt.Sprintf("quality %d verdict %v disagrees with rule %v", id, rec.IsSafe, want))
		}
		byLocation[rec.Location] = append(byLocation[rec.Location], id)
	}
	return byLocation, count, faults
}

// checkLocations verifies the location index against the walked records.
// Records appended while the pass runs may legitimately extend the index,
// so the walked IDs only have to be a prefix of what the index returns.
func (a *Auditor) checkLocations(ctx context.Context, byLocation map[string][]uint64) []string {
	var faults []string
	for location, want := range byLocation {
		got, err := a.store.HistoryAt(ctx, location)
		if err != nil {
			faults = append(faults, fmt.Sprintf("history at %q: %v", location, err))
			continue
		}
		if len(got) < len(want) {
			faults = append(faults, fmt.Sprintf("history at %q lists %d records, walked %d", location, len(got), len(want)))
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				faults = append(faults, fmt.Sprintf("history at %q position %d: got %d, want %d", location, i, got[i], want[i]))
				break
			}
		}
	}
	return faults
}

// checkDistributions walks distribution records, verifying density, that
// every qualityRef resolves to a safe record, and that delivery timestamps
// agree with the delivered flag.
func (a *Auditor) checkDistributions(ctx context.Context, qcount uint64) []string {
	var faults []string

	count, err := a.store.DistributionCount(ctx)
	if err != nil {
		return []string{fmt.Sprintf("distribution count: %v", err)}
	}

	for id := uint64(1); id <= count; id++ {
		rec, err := a.store.Distribution(ctx, id)
		if err != nil {
			faults = append(faults, fmt.Sprintf("distribution %d missing: %v", id, err))
			continue
		}
		if rec.ID != id {
			faults = append(faults, fmt.Sprintf("distribution %d carries ID %d", id, rec.ID))
		}
		if rec.QualityRef == 0 || rec.QualityRef > qcount {
			faults = append(faults, fmt.Sprintf("distribution %d references quality %d of %d", id, rec.QualityRef, qcount))
		} else if q, err := a.store.Quality(ctx, rec.QualityRef); err != nil {
			faults = append(faults, fmt.Sprintf("distribution %d quality ref: %v", id, err))
		} else if !q.IsSafe {
			faults = append(faults, fmt.Sprintf("distribution %d references unsafe quality %d", id, rec.QualityRef))
		}
		if rec.Delivered && rec.DeliveredAt == 0 {
			faults = append(faults, fmt.Sprintf("distribution %d delivered without timestamp", id))
		}
		if !rec.Delivered && rec.DeliveredAt != 0 {
			faults = append(faults, fmt.Sprintf("distribution %d has delivery timestamp while undelivered", id))
		}
	}
	return faults
}
