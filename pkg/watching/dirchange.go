package watching

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/charlesoon/everything/pkg/catalog"
	"github.com/charlesoon/everything/pkg/events"
	"github.com/charlesoon/everything/pkg/ignore"
	"github.com/charlesoon/everything/pkg/logging"
	"github.com/charlesoon/everything/pkg/state"
)

const (
	// dirChangeDebounce is the quiet period before accumulated changes are
	// flushed to the catalog.
	dirChangeDebounce = 500 * time.Millisecond
	// dirChangePollInterval is the cadence at which expired rename halves are
	// decayed into deletes. Flushes are driven by the coalescer, not by this
	// interval.
	dirChangePollInterval = 1 * time.Second
	// heartbeatInterval is the cadence at which the watcher's liveness
	// timestamp is persisted for catchup gap detection.
	heartbeatInterval = 30 * time.Second
)

// DirChangeWatcher is the recursive kernel-notification fallback watcher. It
// registers a watch on every indexed directory (and on directories created
// later), classifies raw notifications into changes, pairs renames, and
// applies debounced flushes through the shared applier.
type DirChangeWatcher struct {
	// roots are the indexed roots to cover.
	roots []string
	// applier applies coalesced flushes.
	applier *Applier
	// ignores prunes watch registration.
	ignores *ignore.Set
	// store persists the liveness heartbeat.
	store *catalog.Store
	// bus carries pathignore-change notifications, possibly nil.
	bus *events.Bus
	// pathignoreFile, if non-empty, is watched for rule changes.
	pathignoreFile string
	// logger is the watcher's logger.
	logger *logging.Logger

	// watcher is the underlying kernel notification watcher.
	watcher *fsnotify.Watcher
	// lock guards pending and renames.
	lock sync.Mutex
	// pending are classified changes awaiting flush.
	pending []Change
	// renames are rename-from halves awaiting their pairs, in FIFO order.
	renames []pendingRename
	// coalescer debounces flushes.
	coalescer *state.Coalescer
	// stop signals termination.
	stop chan struct{}
	// done is closed when the run loop exits.
	done chan struct{}
}

// NewDirChangeWatcher creates a fallback watcher over the specified roots.
func NewDirChangeWatcher(
	roots []string,
	applier *Applier,
	ignores *ignore.Set,
	store *catalog.Store,
	bus *events.Bus,
	pathignoreFile string,
	logger *logging.Logger,
) *DirChangeWatcher {
	return &DirChangeWatcher{
		roots:          roots,
		applier:        applier,
		ignores:        ignores,
		store:          store,
		bus:            bus,
		pathignoreFile: pathignoreFile,
		logger:         logger,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start registers watches and launches the polling loop.
func (w *DirChangeWatcher) Start() error {
	// Create the kernel watcher.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "unable to create directory watcher")
	}
	w.watcher = watcher
	w.coalescer = state.NewCoalescer(dirChangeDebounce)

	// Register the indexed roots recursively, plus the pathignore file's
	// directory if configured.
	registered := 0
	for _, root := range w.roots {
		registered += w.registerTree(root)
	}
	if w.pathignoreFile != "" {
		if err := watcher.Add(filepath.Dir(w.pathignoreFile)); err != nil {
			w.logger.Debugf("unable to watch pathignore directory: %v", err)
		}
	}
	w.logger.Infof("watching %d directories under %d roots", registered, len(w.roots))

	// Launch the event classification and polling loops.
	go w.classifyLoop()
	go w.run()

	// Done.
	return nil
}

// Stop terminates the watcher and waits for its loops to exit.
func (w *DirChangeWatcher) Stop() {
	close(w.stop)
	<-w.done
	w.watcher.Close()
	w.coalescer.Terminate()
}

// registerTree registers watches on a directory and all unignored
// descendants, returning the number of watches added.
func (w *DirChangeWatcher) registerTree(root string) int {
	count := 0
	filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			return filepath.SkipDir
		}
		if path != root {
			if w.ignores.SkipsSegment(entry.Name()) || w.ignores.ShouldSkip(path, true) {
				return filepath.SkipDir
			}
		}
		if err := w.watcher.Add(path); err == nil {
			count++
		}
		return nil
	})
	return count
}

// classifyLoop turns raw kernel notifications into pending changes. Rename
// notifications arrive on the old path; the matching create on the new path
// within the pairing window completes them.
func (w *DirChangeWatcher) classifyLoop() {
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.classify(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Transient watcher errors are logged and retried implicitly by
			// the kernel queue; they never crash the watcher.
			w.logger.Warnf("watch error: %v", err)
		}
	}
}

// classify appends the change for a single raw notification.
func (w *DirChangeWatcher) classify(event fsnotify.Event) {
	// Surface pathignore rule edits.
	if w.pathignoreFile != "" && event.Name == w.pathignoreFile {
		if w.bus != nil {
			w.bus.Publish(events.TopicPathignoreChanged, nil)
		}
		return
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	switch {
	case event.Op&fsnotify.Rename != 0:
		// A rename notification carries only the old path; hold it for
		// pairing.
		w.renames = append(w.renames, pendingRename{oldPath: event.Name, recordedAt: time.Now()})
	case event.Op&fsnotify.Create != 0:
		// Pair with the oldest pending rename half if it is still within the
		// pairing window; an expired oldest half leaves the create unpaired.
		if len(w.renames) > 0 && time.Since(w.renames[0].recordedAt) <= renamePairTimeout {
			oldPath := w.renames[0].oldPath
			w.renames = w.renames[1:]
			w.pending = append(w.pending, Change{Kind: ChangeRename, Path: event.Name, OldPath: oldPath})
		} else {
			w.pending = append(w.pending, Change{Kind: ChangeCreate, Path: event.Name})
		}
		// Newly created directories need their own watches.
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if !w.ignores.ShouldSkip(event.Name, true) {
				w.registerTree(event.Name)
			}
		}
	case event.Op&fsnotify.Remove != 0:
		w.pending = append(w.pending, Change{Kind: ChangeDelete, Path: event.Name})
	case event.Op&fsnotify.Write != 0:
		w.pending = append(w.pending, Change{Kind: ChangeModify, Path: event.Name})
	default:
		// Metadata-only notifications don't change what a name search
		// finds.
		return
	}
	w.coalescer.Strobe()
}

// run is the polling loop: expired rename halves decay to deletes once per
// poll interval, debounced flushes apply through the applier, and the
// liveness heartbeat persists periodically.
func (w *DirChangeWatcher) run() {
	defer close(w.done)
	poll := time.NewTicker(dirChangePollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-w.stop:
			// Apply any remaining changes before exiting.
			w.flush()
			return
		case <-poll.C:
			w.expireRenames()
		case <-w.coalescer.Events():
			w.flush()
		case <-heartbeat.C:
			if err := w.store.SetMetaInt(catalog.MetaLastActiveTime, time.Now().Unix()); err != nil {
				w.logger.Warnf("unable to persist heartbeat: %v", err)
			}
		}
	}
}

// expireRenames decays rename halves older than the pairing window into
// deletes.
func (w *DirChangeWatcher) expireRenames() {
	w.lock.Lock()
	defer w.lock.Unlock()
	now := time.Now()
	kept := w.renames[:0]
	expired := false
	for _, half := range w.renames {
		if now.Sub(half.recordedAt) > renamePairTimeout {
			w.pending = append(w.pending, Change{Kind: ChangeDelete, Path: half.oldPath})
			expired = true
		} else {
			kept = append(kept, half)
		}
	}
	w.renames = kept
	if expired {
		w.coalescer.Strobe()
	}
}

// flush applies the accumulated changes.
func (w *DirChangeWatcher) flush() {
	w.lock.Lock()
	changes := w.pending
	w.pending = nil
	w.lock.Unlock()
	w.applier.Apply(changes)
}

// WatchRoots computes the set of roots the fallback watcher should cover for
// a scan root: the root itself when readable, pruned by the ignore rules.
func WatchRoots(scanRoot string, ignores *ignore.Set) []string {
	if ignores.ShouldSkip(scanRoot, true) {
		return nil
	}
	if _, err := os.Lstat(scanRoot); err != nil {
		return nil
	}
	return []string{scanRoot}
}
