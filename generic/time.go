package generic

import (
	"sync"
	"time"
)

// =============================================================================
// CLOCK - Injected notion of "now"
// =============================================================================

// Clock provides the current time. The processor never calls time.Now()
// directly so tests can move time across period and cycle boundaries.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// NewFixedClock returns a clock frozen at the given Unix timestamp.
func NewFixedClock(ts Timestamp) FixedClock {
	return FixedClock{T: ts.Time()}
}

// ManualClock is a settable clock for tests and simulations. Safe for
// concurrent use; the scheduler reads it while tests advance it.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewManualClock(ts Timestamp) *ManualClock {
	return &ManualClock{now: ts.Time()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *ManualClock) Set(ts Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts.Time()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Timestamp returns the clock's current time as a Unix timestamp.
func Now(c Clock) Timestamp {
	return TimestampOf(c.Now())
}
