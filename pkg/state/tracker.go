package state

import (
	"errors"
	"sync"
)

// ErrTrackingTerminated indicates that tracking was terminated before a
// polling operation saw any changes.
var ErrTrackingTerminated = errors.New("tracking terminated")

// Tracker provides index-based state tracking using a condition variable. The
// live-search machinery uses it to let the host poll for catalog updates: the
// watcher notifies the tracker after each flush and pollers wake up with the
// new state index.
type Tracker struct {
	// change is the condition variable used to track changes.
	change *sync.Cond
	// index is the current state index. Overflow isn't handled beyond
	// preserving the meaning of 0 as a never-seen previous index, since at
	// one update per nanosecond it would take centuries to wrap.
	index uint64
	// terminated indicates whether or not tracking has been terminated.
	terminated bool
}

// NewTracker creates a new tracker instance with a state index of 1.
func NewTracker() *Tracker {
	return &Tracker{
		change: sync.NewCond(&sync.Mutex{}),
		index:  1,
	}
}

// Terminate terminates tracking, waking all pollers.
func (t *Tracker) Terminate() {
	// Acquire the state lock and defer its release.
	t.change.L.Lock()
	defer t.change.L.Unlock()

	// Mark tracking as terminated.
	t.terminated = true

	// Broadcast the change to anyone waiting.
	t.change.Broadcast()
}

// NotifyOfChange indicates the state index should be incremented and that any
// pollers should be woken.
func (t *Tracker) NotifyOfChange() {
	// Acquire the state lock and defer its release.
	t.change.L.Lock()
	defer t.change.L.Unlock()

	// Increment the state index, handling overflow so that 0 retains its
	// never-seen meaning.
	t.index++
	if t.index == 0 {
		t.index = 1
	}

	// Broadcast the change to anyone waiting.
	t.change.Broadcast()
}

// Index returns the current state index.
func (t *Tracker) Index() uint64 {
	t.change.L.Lock()
	defer t.change.L.Unlock()
	return t.index
}

// WaitForChange waits for a state index different from the previous index
// provided by the caller. A previous index of 0 returns immediately with the
// current index. It returns ErrTrackingTerminated if tracking is terminated
// before or during the wait.
func (t *Tracker) WaitForChange(previousIndex uint64) (uint64, error) {
	// Acquire the state lock and defer its release.
	t.change.L.Lock()
	defer t.change.L.Unlock()

	// Wait for a change or termination.
	for t.index == previousIndex && !t.terminated {
		t.change.Wait()
	}

	// Check for termination.
	if t.terminated {
		return 0, ErrTrackingTerminated
	}

	// Done.
	return t.index, nil
}
