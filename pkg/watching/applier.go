package watching

import (
	"os"
	"time"

	"github.com/charlesoon/everything/pkg/catalog"
	"github.com/charlesoon/everything/pkg/events"
	"github.com/charlesoon/everything/pkg/ignore"
	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/logging"
	"github.com/charlesoon/everything/pkg/recent"
	"github.com/charlesoon/everything/pkg/state"
	"github.com/charlesoon/everything/pkg/status"
)

// Applier turns coalesced changes into catalog mutations. All three watchers
// share one applier; it owns the suppression, ignore, and notification
// concerns so the watchers only classify and pair raw events.
type Applier struct {
	// store is the persistent catalog.
	store *catalog.Store
	// ignores is the ignore rule set.
	ignores *ignore.Set
	// recentOps suppresses churn from application-issued operations.
	recentOps *recent.Ops
	// controller is the status controller.
	controller *status.Controller
	// bus is the event bus, possibly nil.
	bus *events.Bus
	// tracker signals live-search pollers after each applied flush.
	tracker *state.Tracker
	// logger is the applier's logger.
	logger *logging.Logger
}

// NewApplier creates an applier.
func NewApplier(
	store *catalog.Store,
	ignores *ignore.Set,
	recentOps *recent.Ops,
	controller *status.Controller,
	bus *events.Bus,
	tracker *state.Tracker,
	logger *logging.Logger,
) *Applier {
	return &Applier{
		store:      store,
		ignores:    ignores,
		recentOps:  recentOps,
		controller: controller,
		bus:        bus,
		tracker:    tracker,
		logger:     logger,
	}
}

// Apply deduplicates and applies a flush of changes. A failed catalog
// mutation abandons the remainder of the flush but leaves state consistent;
// the next flush re-converges.
func (a *Applier) Apply(changes []Change) {
	if len(changes) == 0 {
		return
	}

	// Sweep expired suppression records, then deduplicate the flush.
	a.recentOps.Sweep()
	deduped := dedupeChanges(changes)

	// Partition into upserts and deletions, statting each surviving create
	// or modify.
	var upserts []index.CompactEntry
	var deletions []string
	for _, change := range deduped {
		// Suppress churn from operations the application itself issued.
		if a.recentOps.Suppresses(change.Path) {
			a.logger.Debugf("suppressing %s of recently touched %s", change.Kind, change.Path)
			continue
		}

		switch change.Kind {
		case ChangeCreate, ChangeModify:
			if a.ignores.ShouldSkip(change.Path, false) {
				continue
			}
			if entry, ok := statEntry(change.Path); ok {
				upserts = append(upserts, entry)
			} else {
				// The path vanished between the event and the stat; treat it
				// as deleted.
				deletions = append(deletions, change.Path)
			}
		case ChangeDelete:
			deletions = append(deletions, change.Path)
		}
	}
	if len(upserts) == 0 && len(deletions) == 0 {
		return
	}

	// Apply the mutations.
	if err := a.store.Upsert(upserts); err != nil {
		a.logger.Errorf("abandoning flush: upsert failed: %v", err)
		return
	}
	if err := a.store.DeletePaths(deletions); err != nil {
		a.logger.Errorf("abandoning flush: delete failed: %v", err)
		return
	}

	// Refresh counters and notify.
	a.logger.Debugf("applied flush: %d upserts, %d deletions", len(upserts), len(deletions))
	a.notify()
}

// RescanDirectory reconciles a single directory against the catalog: children
// present on disk are upserted and catalog rows for vanished children are
// deleted. The FSEvents watcher uses it for MustScanSubDirs events; the
// catchup engine uses it for directories whose mtime advanced.
func (a *Applier) RescanDirectory(dir string) error {
	// Enumerate the directory. A permission failure is tallied and leaves the
	// catalog untouched; any other read failure means the directory vanished,
	// so its subtree no longer belongs in the catalog.
	children, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			a.controller.AddPermissionError()
			return nil
		}
		return a.store.DeletePaths([]string{dir})
	}

	// Load the catalog's view of the directory.
	known, err := a.store.ChildNames(dir)
	if err != nil {
		return err
	}

	// Upsert current children and compute the vanished set.
	var upserts []index.CompactEntry
	for _, child := range children {
		name := child.Name()
		delete(known, name)
		childPath := index.JoinPath(dir, name)
		if a.ignores.SkipsSegment(name) || a.ignores.ShouldSkip(childPath, child.IsDir()) {
			continue
		}
		if entry, ok := statEntry(childPath); ok {
			upserts = append(upserts, entry)
		}
	}
	var deletions []string
	for name := range known {
		deletions = append(deletions, index.JoinPath(dir, name))
	}

	// Apply the mutations.
	if err := a.store.Upsert(upserts); err != nil {
		return err
	}
	if err := a.store.DeletePaths(deletions); err != nil {
		return err
	}
	if len(upserts) > 0 || len(deletions) > 0 {
		a.notify()
	}

	// Done.
	return nil
}

// notify refreshes cached counters, updates the status snapshot, and signals
// live-search pollers.
func (a *Applier) notify() {
	now := time.Now().Unix()
	count, err := a.store.RefreshCachedCounts(now)
	if err != nil {
		a.logger.Warnf("unable to refresh counts: %v", err)
		return
	}
	a.controller.UpdateCounts(count, now)
	if a.tracker != nil {
		a.tracker.NotifyOfChange()
	}
	if a.bus != nil {
		a.bus.Publish(events.TopicLiveSearchUpdated, events.LiveSearchUpdatedPayload{})
	}
}

// statEntry stats a path into a compact entry. Symbolic links are recorded as
// files without following them.
func statEntry(path string) (index.CompactEntry, bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return index.CompactEntry{}, false
	}
	dir, name := index.SplitPath(path)
	if name == "" {
		return index.CompactEntry{}, false
	}
	if info.IsDir() {
		return index.NewDirectory(dir, name, info.ModTime().Unix()), true
	}
	return index.NewFile(dir, name, info.Size(), info.ModTime().Unix()), true
}
