package events

import (
	"context"

	"github.com/aquatrace/aquatrace/internal/waterledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aquaQualityRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqua_quality_records_total",
		Help: "Total quality records appended, by stored verdict.",
	}, []string{"verdict"})

	aquaDistributionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqua_distributions_total",
		Help: "Total distribution records appended.",
	})

	aquaDeliveriesConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqua_deliveries_confirmed_total",
		Help: "Total one-time delivery confirmations.",
	})

	aquaAccessChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqua_access_changes_total",
		Help: "Total role grants and revocations, by action and role.",
	}, []string{"action", "role"})
)

// MetricsSink increments domain counters from ledger events.
type MetricsSink struct{}

// NewMetricsSink creates a MetricsSink. The underlying collectors are
// package-level and registered with the default Prometheus registry.
func NewMetricsSink() *MetricsSink {
	return &MetricsSink{}
}

// Publish implements waterledger.Sink.
func (s *MetricsSink) Publish(_ context.Context, ev waterledger.Event) {
	switch ev.Type {
	case waterledger.EventQualityRecorded:
		verdict := "unsafe"
		if ev.Fields["is_safe"] == "true" {
			verdict = "safe"
		}
		aquaQualityRecordsTotal.WithLabelValues(verdict).Inc()
	case waterledger.EventDistributionTracked:
		aquaDistributionsTotal.Inc()
	case waterledger.EventDeliveryConfirmed:
		aquaDeliveriesConfirmedTotal.Inc()
	case waterledger.EventAccessGranted:
		aquaAccessChangesTotal.WithLabelValues("grant", ev.Fields["role"]).Inc()
	case waterledger.EventAccessRevoked:
		aquaAccessChangesTotal.WithLabelValues("revoke", ev.Fields["role"]).Inc()
	}
}
