package waterledger

import (
	"sync"
	"time"
)

// Clock supplies the logical timestamps stamped onto records and events.
// Implementations must be monotonically non-decreasing: a later call never
// returns a smaller value than an earlier one.
type Clock interface {
	Now() int64
}

// SystemClock is a Clock backed by wall-clock Unix seconds, clamped so that
// a backwards NTP step cannot produce a decreasing timestamp.
type SystemClock struct {
	mu   sync.Mutex
	last int64
}

// Now implements Clock.
func (c *SystemClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().Unix()
	if now < c.last {
		now = c.last
	}
	c.last = now
	return now
}
