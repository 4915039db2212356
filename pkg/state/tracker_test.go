package state

import (
	"testing"
	"time"
)

func TestTrackerNotification(t *testing.T) {
	tracker := NewTracker()
	initial := tracker.Index()

	// Wait for a change in the background.
	results := make(chan uint64, 1)
	go func() {
		index, err := tracker.WaitForChange(initial)
		if err != nil {
			close(results)
			return
		}
		results <- index
	}()

	// Notify and verify that the poller wakes with a new index.
	tracker.NotifyOfChange()
	select {
	case index, ok := <-results:
		if !ok {
			t.Fatal("wait failed unexpectedly")
		}
		if index == initial {
			t.Fatal("index should have advanced")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestTrackerStaleIndexReturnsImmediately(t *testing.T) {
	tracker := NewTracker()
	if index, err := tracker.WaitForChange(0); err != nil || index != tracker.Index() {
		t.Fatal("stale previous index should return immediately")
	}
}

func TestTrackerTermination(t *testing.T) {
	tracker := NewTracker()
	results := make(chan error, 1)
	go func() {
		_, err := tracker.WaitForChange(tracker.Index())
		results <- err
	}()
	tracker.Terminate()
	select {
	case err := <-results:
		if err != ErrTrackingTerminated {
			t.Fatal("termination error not as expected:", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for termination")
	}
}

func TestCoalescerStrobing(t *testing.T) {
	coalescer := NewCoalescer(10 * time.Millisecond)
	defer coalescer.Terminate()

	// Strobe several times in quick succession; exactly one event should
	// arrive after the window.
	coalescer.Strobe()
	coalescer.Strobe()
	coalescer.Strobe()
	select {
	case <-coalescer.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for coalesced event")
	}
	select {
	case <-coalescer.Events():
		t.Fatal("coalesced signals should deliver a single event")
	case <-time.After(50 * time.Millisecond):
	}
}
