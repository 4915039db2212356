package memindex

import (
	"sync"
)

// Holder is the shared publication point for the memory index. Readers take
// the read lock for the duration of a query; the single publisher swaps in a
// new instance atomically. Once the catalog's name index exists, the index is
// freed and queries fall through to the catalog.
type Holder struct {
	// lock guards the index pointer.
	lock sync.RWMutex
	// index is the current index, or nil if none is published.
	index *Index
}

// NewHolder creates an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Get returns the current index, or nil if none is published. Callers may use
// the returned index freely; instances are immutable.
func (h *Holder) Get() *Index {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.index
}

// Publish swaps in a new index.
func (h *Holder) Publish(index *Index) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.index = index
}

// Free drops the current index so its memory can be reclaimed. In-flight
// queries holding the previous instance complete safely against it.
func (h *Holder) Free() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.index = nil
}
