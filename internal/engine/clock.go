package engine

import "sync/atomic"

// Clock is a monotonic logical clock. Each unit result is stamped with the
// next value when it reaches a terminal state, giving a completion order
// that does not depend on wall-clock resolution.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
// Calls are linearizable; each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
