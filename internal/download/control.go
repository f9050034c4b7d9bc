package download

import (
	"sync"
	"time"
)

// Control carries the two cooperative flags a running queue honors:
// cancel, which is terminal, and pause, which is a reversible gate.
// All methods are safe to call from any goroutine; the transfer loop
// checks them between chunks, so both take effect at sub-second
// granularity without forceful termination.
type Control struct {
	mu        sync.Mutex
	cond      *sync.Cond
	paused    bool
	cancelled bool
	done      chan struct{}
}

// NewControl returns an idle control: not paused, not cancelled.
func NewControl() *Control {
	c := &Control{done: make(chan struct{})}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Cancel requests termination. Idempotent. Wakes any paused waiter.
func (c *Control) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	close(c.done)
	c.cond.Broadcast()
}

// Pause closes the gate; transfers block at the next chunk boundary.
func (c *Control) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume reopens the gate.
func (c *Control) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Cancelled reports whether Cancel was called.
func (c *Control) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Paused reports whether the gate is currently closed.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Done returns a channel closed when Cancel is called.
func (c *Control) Done() <-chan struct{} {
	return c.done
}

// Wait blocks while paused and returns false if the control was
// cancelled, before or during the wait. Blocking uses the condition
// variable, not polling.
func (c *Control) Wait() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.paused && !c.cancelled {
		c.cond.Wait()
	}
	return !c.cancelled
}

// Sleep waits out d while honoring pause and cancel. Returns false when
// cancelled; pause stretches the wait but does not abort it.
func (c *Control) Sleep(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if !c.Wait() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		step := controlPollInterval
		if remaining < step {
			step = remaining
		}
		select {
		case <-c.done:
			return false
		case <-time.After(step):
		}
	}
}
