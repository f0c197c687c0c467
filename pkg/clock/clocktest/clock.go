// Package clocktest provides a manually driven clock for deterministic tests.
package clocktest

import (
	"sync"
	"time"
)

// Epoch is the default start time of a Clock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type waiter struct {
	requested time.Duration
	until     time.Time
	ch        chan time.Time
}

// Clock is a fake clock. Time only moves when Advance is called.
type Clock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []*waiter
}

// New creates a Clock starting at now. A zero time starts at Epoch.
func New(now time.Time) *Clock {
	if now.IsZero() {
		now = Epoch
	}
	c := &Clock{now: now}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a waiter that fires once the clock is advanced past d.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, &waiter{requested: d, until: c.now.Add(d), ch: ch})
	c.cond.Broadcast()
	return ch
}

// Advance moves the clock forward and fires every waiter that became due.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.until.After(c.now) {
			w.ch <- c.now
			continue
		}
		pending = append(pending, w)
	}
	c.waiters = pending
	c.cond.Broadcast()
}

// BlockUntil waits until at least n waiters are pending.
func (c *Clock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.cond.Wait()
	}
}

// WaitFor waits until a waiter that requested exactly d is pending.
func (c *Clock) WaitFor(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.hasRequested(d) {
		c.cond.Wait()
	}
}

// Requested lists the durations of all pending waiters in registration order.
func (c *Clock) Requested() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waiters))
	for i, w := range c.waiters {
		out[i] = w.requested
	}
	return out
}

func (c *Clock) hasRequested(d time.Duration) bool {
	for _, w := range c.waiters {
		if w.requested == d {
			return true
		}
	}
	return false
}
