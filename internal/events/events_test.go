package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aquatrace/aquatrace/internal/events"
	"github.com/aquatrace/aquatrace/internal/waterledger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var ctx = context.Background()

type countingSink struct {
	mu sync.Mutex
	n  int
}

func (s *countingSink) Publish(_ context.Context, _ waterledger.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

type stubSender struct {
	mu    sync.Mutex
	to    []string
	sent  chan struct{}
	calls int
}

func newStubSender() *stubSender {
	return &stubSender{sent: make(chan struct{}, 8)}
}

func (s *stubSender) Send(_ context.Context, to []string, _, _ string) error {
	s.mu.Lock()
	s.to = to
	s.calls++
	s.mu.Unlock()
	s.sent <- struct{}{}
	return nil
}

func qualityEvent(isSafe string) waterledger.Event {
	return waterledger.Event{
		ID:   uuid.New(),
		Type: waterledger.EventQualityRecorded,
		At:   1,
		Fields: map[string]string{
			"quality_id": "1",
			"location":   "Well-A",
			"is_safe":    isSafe,
			"verifier":   "lab-tech-1",
		},
	}
}

func TestFanout_publishesToAllSinks(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	f := events.NewFanout(a, nil, b)

	f.Publish(ctx, qualityEvent("true"))
	f.Publish(ctx, qualityEvent("false"))

	if a.count() != 2 || b.count() != 2 {
		t.Errorf("fanout counts: a=%d b=%d, want 2 each", a.count(), b.count())
	}
}

func TestAlertSink_mailsOnUnsafeOnly(t *testing.T) {
	sender := newStubSender()
	sink := events.NewAlertSink(sender, []string{"ops@example.com"}, zap.NewNop())

	sink.Publish(ctx, qualityEvent("true"))
	sink.Publish(ctx, waterledger.Event{Type: waterledger.EventDistributionTracked, Fields: map[string]string{}})

	select {
	case <-sender.sent:
		t.Fatal("safe and non-quality events must not trigger mail")
	case <-time.After(50 * time.Millisecond):
	}

	sink.Publish(ctx, qualityEvent("false"))
	select {
	case <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("unsafe event should trigger mail")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if sender.calls != 1 || len(sender.to) != 1 || sender.to[0] != "ops@example.com" {
		t.Errorf("sends: calls=%d to=%v", sender.calls, sender.to)
	}
}

func TestAlertSink_noRecipientsNoMail(t *testing.T) {
	sender := newStubSender()
	sink := events.NewAlertSink(sender, nil, zap.NewNop())

	sink.Publish(ctx, qualityEvent("false"))
	select {
	case <-sender.sent:
		t.Fatal("no recipients configured, nothing should be sent")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMetricsSink_countsByVerdict(t *testing.T) {
	sink := events.NewMetricsSink()

	safeBefore := counterValue(t, "aqua_quality_records_total", map[string]string{"verdict": "safe"})
	unsafeBefore := counterValue(t, "aqua_quality_records_total", map[string]string{"verdict": "unsafe"})

	sink.Publish(ctx, qualityEvent("true"))
	sink.Publish(ctx, qualityEvent("false"))
	sink.Publish(ctx, qualityEvent("false"))

	if got := counterValue(t, "aqua_quality_records_total", map[string]string{"verdict": "safe"}); got != safeBefore+1 {
		t.Errorf("safe counter: got %v, want %v", got, safeBefore+1)
	}
	if got := counterValue(t, "aqua_quality_records_total", map[string]string{"verdict": "unsafe"}); got != unsafeBefore+2 {
		t.Errorf("unsafe counter: got %v, want %v", got, unsafeBefore+2)
	}
}

// counterValue reads a counter with the given label set from the default
// Prometheus registry; absent series read as 0.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
