// Package events provides the narrow event bus over which the indexer and
// watchers surface progress and state transitions to the host.
package events

import (
	"sync"
)

// Topic identifies an event stream.
type Topic string

const (
	// TopicIndexState carries state-machine transitions.
	TopicIndexState Topic = "index_state"
	// TopicIndexProgress carries scan progress updates.
	TopicIndexProgress Topic = "index_progress"
	// TopicIndexUpdated carries catalog counter updates.
	TopicIndexUpdated Topic = "index_updated"
	// TopicLiveSearchUpdated signals that results for a live query may have
	// changed.
	TopicLiveSearchUpdated Topic = "live_search_updated"
	// TopicPathignoreChanged signals that the ignore rule set was modified.
	TopicPathignoreChanged Topic = "pathignore_changed"
	// TopicFocusSearch asks the host to focus its search input.
	TopicFocusSearch Topic = "focus_search"
)

// IndexStatePayload is the payload for index_state events.
type IndexStatePayload struct {
	// State is the new state name.
	State string `json:"state"`
	// Message is an optional human-readable message.
	Message string `json:"message,omitempty"`
}

// IndexProgressPayload is the payload for index_progress events.
type IndexProgressPayload struct {
	// Scanned is the number of filesystem objects visited.
	Scanned uint64 `json:"scanned"`
	// Indexed is the number of entries materialized.
	Indexed uint64 `json:"indexed"`
	// CurrentPath is the path most recently visited.
	CurrentPath string `json:"current_path,omitempty"`
}

// IndexUpdatedPayload is the payload for index_updated events.
type IndexUpdatedPayload struct {
	// EntriesCount is the catalog entry count.
	EntriesCount int64 `json:"entries_count"`
	// LastUpdated is the Unix timestamp of the last mutation.
	LastUpdated int64 `json:"last_updated"`
	// PermissionErrors is the number of permission failures tallied.
	PermissionErrors uint64 `json:"permission_errors"`
}

// LiveSearchUpdatedPayload is the payload for live_search_updated events.
type LiveSearchUpdatedPayload struct {
	// Query is the live query whose results may have changed.
	Query string `json:"query"`
}

// subscriberCapacity is the buffer size of subscriber channels. Events are
// dropped (never blocked on) when a subscriber falls this far behind.
const subscriberCapacity = 64

// Event pairs a topic with its payload.
type Event struct {
	// Topic is the event's topic.
	Topic Topic
	// Payload is the topic-specific payload, possibly nil.
	Payload interface{}
}

// Bus is a topic-based fan-out bus. Publishing never blocks; slow
// subscribers lose events rather than stalling the watcher.
type Bus struct {
	// lock guards subscribers.
	lock sync.Mutex
	// subscribers maps topics to delivery channels.
	subscribers map[Topic][]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[Topic][]chan Event)}
}

// Subscribe registers for events on the specified topics, returning the
// delivery channel. The channel is never closed.
func (b *Bus) Subscribe(topics ...Topic) <-chan Event {
	channel := make(chan Event, subscriberCapacity)
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, topic := range topics {
		b.subscribers[topic] = append(b.subscribers[topic], channel)
	}
	return channel
}

// Publish delivers an event to every subscriber of its topic without
// blocking.
func (b *Bus) Publish(topic Topic, payload interface{}) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, channel := range b.subscribers[topic] {
		select {
		case channel <- Event{Topic: topic, Payload: payload}:
		default:
		}
	}
}
