// Package events provides the sinks that consume post-commit ledger events:
// structured logs, Prometheus counters, contamination alert mail, and a
// fan-out for running several sinks at once.
//
// Sinks never report failure to the ledger. Whatever goes wrong during
// publication is logged and dropped; the mutation that produced the event
// has already committed.
package events

import (
	"context"

	"github.com/aquatrace/aquatrace/internal/waterledger"
)

// Fanout publishes every event to each of its sinks in order.
type Fanout struct {
	sinks []waterledger.Sink
}

// NewFanout creates a Fanout over the given sinks. Nil sinks are skipped.
func NewFanout(sinks ...waterledger.Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish implements waterledger.Sink.
func (f *Fanout) Publish(ctx context.Context, ev waterledger.Event) {
	for _, s := range f.sinks {
		s.Publish(ctx, ev)
	}
}
