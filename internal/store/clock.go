package store

import "sync/atomic"

// Clock is a monotonic logical clock. Every dispatched action advances it,
// which gives readers a cheap change detector.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a given value, to resume numbering
// after loading a snapshot.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the value without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
