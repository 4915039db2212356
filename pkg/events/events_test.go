package events

import (
	"testing"
	"time"
)

func TestPublishAndSubscribe(t *testing.T) {
	bus := NewBus()
	updates := bus.Subscribe(TopicIndexState, TopicIndexProgress)

	bus.Publish(TopicIndexState, IndexStatePayload{State: "indexing"})
	select {
	case event := <-updates:
		if event.Topic != TopicIndexState {
			t.Fatal("topic not as expected:", event.Topic)
		}
		if payload, ok := event.Payload.(IndexStatePayload); !ok || payload.State != "indexing" {
			t.Fatal("payload not as expected:", event.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribedTopicNotDelivered(t *testing.T) {
	bus := NewBus()
	updates := bus.Subscribe(TopicIndexState)
	bus.Publish(TopicFocusSearch, nil)
	select {
	case <-updates:
		t.Fatal("events should not cross topics")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TopicIndexProgress)

	// Flood well past the subscriber buffer without draining; Publish must
	// drop rather than stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberCapacity*4; i++ {
			bus.Publish(TopicIndexProgress, IndexProgressPayload{Scanned: uint64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
