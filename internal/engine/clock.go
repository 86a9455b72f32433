package engine

import "sync/atomic"

// Clock is a monotonic logical counter. The engine draws scope handles and
// reconstructed version stamps from it.
//
// Thread Safety: safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first value is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1. Hosts that
// persist handles across restarts resume from the last one they issued.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value issued, or the start value.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
