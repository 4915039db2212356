// Package status maintains the shared status snapshot and its state machine:
// Ready, Indexing, and Error. The indexer and watchers drive transitions;
// query and background workers only read.
package status

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlesoon/everything/pkg/events"
)

// State identifies the engine's top-level state.
type State uint8

const (
	// StateReady indicates that the engine is serving queries.
	StateReady State = iota
	// StateIndexing indicates that a full index is in progress.
	StateIndexing
	// StateError indicates that all indexing paths failed and no usable
	// catalog exists.
	StateError
)

// String provides a human-readable representation of a state.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateIndexing:
		return "indexing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is the host-facing status record.
type Snapshot struct {
	// State is the engine state.
	State string `json:"state"`
	// Scanned is the number of filesystem objects visited by the current or
	// last run.
	Scanned uint64 `json:"scanned"`
	// Indexed is the number of entries materialized.
	Indexed uint64 `json:"indexed"`
	// EntriesCount is the catalog entry count.
	EntriesCount int64 `json:"entries_count"`
	// LastUpdated is the Unix timestamp of the last catalog mutation.
	LastUpdated int64 `json:"last_updated"`
	// PermissionErrors is the number of permission failures tallied.
	PermissionErrors uint64 `json:"permission_errors"`
	// Message is an optional human-readable message.
	Message string `json:"message,omitempty"`
}

// Controller owns the status snapshot. The scanned and indexed counters are
// atomics so that parallel walkers can advance them without contending on
// the snapshot lock; everything else is guarded by a short-held lock.
type Controller struct {
	// lock guards the non-counter fields.
	lock sync.Mutex
	// state is the current engine state.
	state State
	// entriesCount is the catalog entry count.
	entriesCount int64
	// lastUpdated is the Unix timestamp of the last catalog mutation.
	lastUpdated int64
	// message is the optional status message.
	message string
	// scanned counts filesystem objects visited.
	scanned uint64
	// indexed counts entries materialized.
	indexed uint64
	// permissionErrors counts permission failures.
	permissionErrors uint64
	// bus is the event bus on which transitions are published, possibly nil.
	bus *events.Bus
}

// NewController creates a controller in the Ready state.
func NewController(bus *events.Bus) *Controller {
	return &Controller{bus: bus}
}

// Snapshot returns the current status.
func (c *Controller) Snapshot() Snapshot {
	c.lock.Lock()
	defer c.lock.Unlock()
	return Snapshot{
		State:            c.state.String(),
		Scanned:          atomic.LoadUint64(&c.scanned),
		Indexed:          atomic.LoadUint64(&c.indexed),
		EntriesCount:     c.entriesCount,
		LastUpdated:      c.lastUpdated,
		PermissionErrors: atomic.LoadUint64(&c.permissionErrors),
		Message:          c.message,
	}
}

// State returns the current engine state.
func (c *Controller) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// transition moves to a new state and publishes the change.
func (c *Controller) transition(state State, message string) {
	c.lock.Lock()
	c.state = state
	c.message = message
	c.lock.Unlock()
	if c.bus != nil {
		c.bus.Publish(events.TopicIndexState, events.IndexStatePayload{
			State:   state.String(),
			Message: message,
		})
	}
}

// BeginIndexing transitions to Indexing and resets the run counters.
func (c *Controller) BeginIndexing() {
	atomic.StoreUint64(&c.scanned, 0)
	atomic.StoreUint64(&c.indexed, 0)
	atomic.StoreUint64(&c.permissionErrors, 0)
	c.transition(StateIndexing, "")
}

// SetReady transitions to Ready with the provided catalog counters.
func (c *Controller) SetReady(entriesCount, lastUpdated int64, message string) {
	c.lock.Lock()
	c.entriesCount = entriesCount
	c.lastUpdated = lastUpdated
	c.lock.Unlock()
	c.transition(StateReady, message)
	if c.bus != nil {
		c.bus.Publish(events.TopicIndexUpdated, events.IndexUpdatedPayload{
			EntriesCount:     entriesCount,
			LastUpdated:      lastUpdated,
			PermissionErrors: atomic.LoadUint64(&c.permissionErrors),
		})
	}
}

// SetError transitions to Error. It is only reached when every indexing path
// failed and no usable catalog exists.
func (c *Controller) SetError(message string) {
	c.transition(StateError, message)
}

// UpdateCounts records new catalog counters without changing state, as the
// watcher does after each applied flush.
func (c *Controller) UpdateCounts(entriesCount, lastUpdated int64) {
	c.lock.Lock()
	c.entriesCount = entriesCount
	c.lastUpdated = lastUpdated
	c.lock.Unlock()
	if c.bus != nil {
		c.bus.Publish(events.TopicIndexUpdated, events.IndexUpdatedPayload{
			EntriesCount:     entriesCount,
			LastUpdated:      lastUpdated,
			PermissionErrors: atomic.LoadUint64(&c.permissionErrors),
		})
	}
}

// AddScanned advances the scanned counter and returns its new value.
func (c *Controller) AddScanned(delta uint64) uint64 {
	return atomic.AddUint64(&c.scanned, delta)
}

// AddIndexed advances the indexed counter and returns its new value.
func (c *Controller) AddIndexed(delta uint64) uint64 {
	return atomic.AddUint64(&c.indexed, delta)
}

// AddPermissionError tallies a permission failure. Permission failures are
// non-fatal; they only contribute a count and a single status message.
func (c *Controller) AddPermissionError() {
	atomic.AddUint64(&c.permissionErrors, 1)
}

// PermissionErrors returns the permission failure count.
func (c *Controller) PermissionErrors() uint64 {
	return atomic.LoadUint64(&c.permissionErrors)
}

// PublishProgress publishes an index_progress event with the current
// counters.
func (c *Controller) PublishProgress(currentPath string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.TopicIndexProgress, events.IndexProgressPayload{
		Scanned:     atomic.LoadUint64(&c.scanned),
		Indexed:     atomic.LoadUint64(&c.indexed),
		CurrentPath: currentPath,
	})
}

// Touch records the current time as the last-updated timestamp.
func (c *Controller) Touch() {
	c.lock.Lock()
	c.lastUpdated = time.Now().Unix()
	c.lock.Unlock()
}
