//go:build darwin && cgo
// +build darwin,cgo

package watching

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/mutagen-io/fsevents"
	"github.com/pkg/errors"

	"github.com/charlesoon/everything/pkg/catalog"
	"github.com/charlesoon/everything/pkg/logging"
)

const (
	// fseventsChannelCapacity is the capacity of the internal FSEvents event
	// channel.
	fseventsChannelCapacity = 50
	// fseventsCoalescingPeriod is the latency parameter handed to the
	// FSEvents API, defining the window over which the API itself coalesces
	// events before delivering a batch.
	fseventsCoalescingPeriod = 300 * time.Millisecond
	// fseventsFlags are the stream creation flags. NoDefer delivers one-shot
	// events immediately while still coalescing bursts; FileEvents yields
	// per-file paths rather than per-directory.
	fseventsFlags = fsevents.NoDefer | fsevents.WatchRoot | fsevents.FileEvents
)

// FSEventsWatcher propagates live changes on macOS. A dedicated Goroutine
// owns the host event stream; history replay from a persisted event id closes
// restart gaps without a full rescan.
type FSEventsWatcher struct {
	// root is the watch root.
	root string
	// applier applies flushes.
	applier *Applier
	// store persists the event id and liveness heartbeat.
	store *catalog.Store
	// logger is the watcher's logger.
	logger *logging.Logger
	// stream is the underlying event stream.
	stream *fsevents.EventStream
	// lastEventID is the highest event id seen, exposed for persistence.
	lastEventID uint64
	// replayDone records whether or not history replay has completed.
	replayDone uint32
	// stop signals termination.
	stop chan struct{}
	// done is closed when the run loop exits.
	done chan struct{}
}

// NewFSEventsWatcher creates a watcher over the specified root. If resume is
// true, events since sinceEventID are replayed before live delivery begins.
func NewFSEventsWatcher(root string, sinceEventID uint64, resume bool, applier *Applier, store *catalog.Store, logger *logging.Logger) (*FSEventsWatcher, error) {
	// Enforce an absolute watch root, since event paths arrive rooted at the
	// system root.
	if !filepath.IsAbs(root) {
		return nil, errors.New("watch root must be absolute")
	}

	// Create the event stream.
	stream := &fsevents.EventStream{
		Events:  make(chan []fsevents.Event, fseventsChannelCapacity),
		Paths:   []string{root},
		Latency: fseventsCoalescingPeriod,
		Flags:   fseventsFlags,
	}
	if resume {
		stream.EventID = sinceEventID
		stream.Resume = true
	}

	// Create the watcher.
	return &FSEventsWatcher{
		root:    root,
		applier: applier,
		store:   store,
		logger:  logger,
		stream:  stream,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the event stream and its processing loop.
func (w *FSEventsWatcher) Start() error {
	w.stream.Start()
	go w.run()
	return nil
}

// Stop shuts down the stream and waits for the processing loop to exit.
func (w *FSEventsWatcher) Stop() {
	close(w.stop)
	<-w.done
	w.stream.Stop()
}

// LastEventID returns the highest event id seen so far.
func (w *FSEventsWatcher) LastEventID() uint64 {
	return atomic.LoadUint64(&w.lastEventID)
}

// run processes event batches until stopped, persisting the event id and
// liveness heartbeat periodically.
func (w *FSEventsWatcher) run() {
	defer close(w.done)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-w.stop:
			w.persistPosition()
			return
		case batch, ok := <-w.stream.Events:
			if !ok {
				w.logger.Error("event stream closed unexpectedly")
				return
			}
			w.processBatch(batch)
		case <-heartbeat.C:
			w.persistPosition()
		}
	}
}

// processBatch classifies and applies one delivered batch.
func (w *FSEventsWatcher) processBatch(batch []fsevents.Event) {
	changes := make([]Change, 0, len(batch))
	for _, event := range batch {
		// Track the event id high-water mark.
		for {
			previous := atomic.LoadUint64(&w.lastEventID)
			if event.ID <= previous || atomic.CompareAndSwapUint64(&w.lastEventID, previous, event.ID) {
				break
			}
		}

		// Event paths can arrive without their leading separator.
		path := event.Path
		if !filepath.IsAbs(path) {
			path = "/" + path
		}

		// Classify the event.
		if event.Flags&fsevents.HistoryDone != 0 {
			atomic.StoreUint32(&w.replayDone, 1)
			w.logger.Info("history replay complete")
			continue
		}
		if event.Flags&fsevents.MustScanSubDirs != 0 {
			// A bucket overflowed; reconcile the indicated directory afresh.
			if err := w.applier.RescanDirectory(path); err != nil {
				w.logger.Warnf("unable to rescan %s: %v", path, err)
			}
			continue
		}

		// Normal paths are statted by the applier: present paths upsert,
		// vanished paths delete.
		changes = append(changes, Change{Kind: ChangeModify, Path: path})
	}
	w.applier.Apply(changes)
}

// persistPosition flushes the current event id and heartbeat timestamp.
func (w *FSEventsWatcher) persistPosition() {
	if err := w.store.SetMetaInt(catalog.MetaMacLastEventID, int64(atomic.LoadUint64(&w.lastEventID))); err != nil {
		w.logger.Warnf("unable to persist event id: %v", err)
	}
	if err := w.store.SetMetaInt(catalog.MetaLastActiveTime, time.Now().Unix()); err != nil {
		w.logger.Warnf("unable to persist heartbeat: %v", err)
	}
}
