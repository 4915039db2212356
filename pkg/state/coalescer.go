package state

import (
	"sync"
	"time"
)

// Coalescer debounces bursts of signals into single notifications. The
// watchers strobe it once per classified filesystem change and flush to the
// catalog only after a full quiet window has elapsed, so that a branch
// switch or large copy collapses into one catalog transaction instead of
// thousands. The USN watcher runs a five second window; the directory-change
// watcher runs half a second; the coalescer itself is window-agnostic.
//
// A Coalescer is safe for concurrent usage and holds no background Goroutine
// between strobes: the pending notification lives in a single timer that is
// re-armed on every strobe.
type Coalescer struct {
	// window is the quiet period that must elapse after the last strobe
	// before a notification fires.
	window time.Duration
	// notifications is the delivery channel. It is buffered with a capacity
	// of one so that a notification fired while the consumer is mid-flush is
	// retained rather than lost.
	notifications chan struct{}
	// lock guards the fields below.
	lock sync.Mutex
	// pending is the armed notification timer, nil when no strobe is
	// outstanding.
	pending *time.Timer
	// terminated indicates that the coalescer has been shut down.
	terminated bool
}

// NewCoalescer creates a coalescer with the specified quiet window. A
// negative window is treated as zero, degenerating to notify-on-next-tick.
func NewCoalescer(window time.Duration) *Coalescer {
	if window < 0 {
		window = 0
	}
	return &Coalescer{
		window:        window,
		notifications: make(chan struct{}, 1),
	}
}

// fire delivers a pending notification. It runs on the timer's Goroutine.
func (c *Coalescer) fire() {
	// Re-check state under the lock: a strobe-then-terminate race can leave
	// the timer function running after shutdown, and a terminated coalescer
	// must stay silent.
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.terminated {
		return
	}
	c.pending = nil

	// Deliver without blocking. If the previous notification hasn't been
	// consumed yet, the buffered one already covers this window's changes.
	select {
	case c.notifications <- struct{}{}:
	default:
	}
}

// Strobe registers activity, scheduling a notification for one quiet window
// from now. Strobing again within the window pushes the notification back,
// so a continuous burst yields exactly one notification after it subsides.
// Strobing a terminated coalescer has no effect.
func (c *Coalescer) Strobe() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.terminated {
		return
	}
	if c.pending != nil {
		c.pending.Reset(c.window)
	} else {
		c.pending = time.AfterFunc(c.window, c.fire)
	}
}

// Events returns the notification channel. The channel is never closed, and
// its single-slot buffer means no notification is lost while the consumer is
// busy applying a flush.
func (c *Coalescer) Events() <-chan struct{} {
	return c.notifications
}

// Terminate shuts the coalescer down: any armed timer is stopped and
// subsequent strobes are ignored. Notifications already buffered remain
// readable. Terminate is idempotent.
func (c *Coalescer) Terminate() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.terminated = true
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}
