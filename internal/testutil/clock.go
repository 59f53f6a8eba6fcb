package testutil

import (
	"sync"
	"time"
)

// MockedDate is the instant tests freeze the wall clock at.
var MockedDate = time.Date(2018, 5, 5, 9, 9, 0, 115000000, time.UTC)

// FixedClock is a wall clock that only moves when told to.
//
// Thread-safety: all methods are safe for concurrent use.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock frozen at t. A zero t means MockedDate.
func NewFixedClock(t time.Time) *FixedClock {
	if t.IsZero() {
		t = MockedDate
	}
	return &FixedClock{now: t}
}

// Now returns the frozen instant. Its method value fits any
// func() time.Time option.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
