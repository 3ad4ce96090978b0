package engine

import "sync/atomic"

// Clock is the logical clock stamping each applied call with a seq.
//
// Seq values strictly increase. Ordering never depends on wall time, so a
// replay of the journal reproduces the same seqs.
//
// Clock is safe for concurrent use, though only the engine advances it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock at 0. The first call gets seq 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start, so the next seq is
// start+1. Used to resume after the last journaled call.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// AdvanceTo moves the clock forward to seq if it is behind. It never moves
// the clock back.
func (c *Clock) AdvanceTo(seq int64) {
	for {
		cur := c.seq.Load()
		if cur >= seq || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// Current returns the last issued seq without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
