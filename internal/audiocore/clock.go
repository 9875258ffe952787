package audiocore

import (
	"sync"
	"time"
)

// Clock is a monotonic time source measured from an arbitrary origin
type Clock interface {
	Now() time.Duration
}

type systemClock struct {
	origin time.Time
}

// NewSystemClock returns a Clock backed by the runtime monotonic clock
func NewSystemClock() Clock {
	return &systemClock{origin: time.Now()}
}

func (c *systemClock) Now() time.Duration {
	return time.Since(c.origin)
}

// ManualClock only moves when Advance is called
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now returns the current manual time
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
