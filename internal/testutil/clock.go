package testutil

import (
	"sync"
	"time"
)

// FrozenClock provides a thread-safe fixed wall clock for tests.
//
// Conformance cases that exercise time-dependent template output pin the
// engine's notion of "now" to a known instant; FrozenClock is the harness-side
// counterpart, so expected outputs can be computed against the same instant.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FrozenClock struct {
	mu  sync.Mutex
	now time.Time
}

// FrozenInstant is the default pinned timestamp used across tests.
// Chosen to have a zero sub-second component so RFC 3339 output is stable.
var FrozenInstant = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// NewFrozenClock creates a clock pinned to the given instant.
// A zero instant pins the clock to FrozenInstant.
func NewFrozenClock(at time.Time) *FrozenClock {
	if at.IsZero() {
		at = FrozenInstant
	}
	return &FrozenClock{now: at}
}

// Now returns the pinned instant.
func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the pinned instant forward by d and returns the new value.
// Never moves backwards; a negative d is ignored.
func (c *FrozenClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}
