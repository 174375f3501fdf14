package engine

import "sync/atomic"

// Clock counts the steps an engine admitted and how many of them committed.
//
// Step numbers appear on engine log lines so operators can line up output
// with admission order. They are process-local and never stored.
type Clock struct {
	admitted  atomic.Uint64
	committed atomic.Uint64
}

// NewClock returns a clock at zero.
func NewClock() *Clock {
	return &Clock{}
}

// admit numbers the next step, starting at 1.
func (c *Clock) admit() uint64 {
	return c.admitted.Add(1)
}

func (c *Clock) commit() {
	c.committed.Add(1)
}

// Stats returns the admitted and committed step counts.
func (c *Clock) Stats() (admitted, committed uint64) {
	return c.admitted.Load(), c.committed.Load()
}
