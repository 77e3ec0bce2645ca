package queue

import (
	"sync"
	"time"
)

// coalescer collapses rapid resync triggers into a single callback.
// Triggers within the window reset it; the callback fires once the window
// elapses without further triggers.
type coalescer struct {
	window time.Duration
	fire   func()

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	stopped bool
}

func newCoalescer(window time.Duration, fire func()) *coalescer {
	return &coalescer{
		window: window,
		fire:   fire,
	}
}

// Trigger records a request and restarts the window.
func (c *coalescer) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.pending = true

	// Reset the timer
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, c.flush)
}

// Pending reports whether a trigger is waiting for its window to elapse.
func (c *coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *coalescer) flush() {
	c.mu.Lock()
	if c.stopped || !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.mu.Unlock()

	c.fire()
}

// Stop prevents any further callbacks from firing.
func (c *coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.pending = false
}
