// Package indexer implements catalog population. The portable path is a
// two-phase parallel directory walk tuned for time-to-first-result; on
// Windows, the MFT fast path (see the mft package) is attempted first and
// falls back here when privileges are insufficient.
package indexer

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/charlesoon/everything/pkg/catalog"
	"github.com/charlesoon/everything/pkg/ignore"
	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/logging"
	"github.com/charlesoon/everything/pkg/memindex"
	"github.com/charlesoon/everything/pkg/status"
)

const (
	// shallowDepth is the depth bound of the Phase 1 home scan. Most
	// user-visible files live within it, so the preliminary index is
	// searchable within seconds.
	shallowDepth = 6
)

// Options configure an indexer run.
type Options struct {
	// ScanRoot is the top-level directory to cover.
	ScanRoot string
	// Home is the user's home directory, scanned first for responsiveness.
	// If it doesn't fall under ScanRoot, only ScanRoot is scanned.
	Home string
	// Ignores is the ignore rule set.
	Ignores *ignore.Set
	// OnPersisted is invoked (if non-nil) once background persistence
	// completes, with the error if it failed. The watchers are started from
	// this callback.
	OnPersisted func(runID int64, err error)
}

// Indexer runs the two-phase parallel walk and background persistence.
type Indexer struct {
	// options are the run options.
	options Options
	// store is the persistent catalog.
	store *catalog.Store
	// holder is the memory index publication point.
	holder *memindex.Holder
	// controller is the status controller.
	controller *status.Controller
	// logger is the indexer's logger.
	logger *logging.Logger
}

// New creates an indexer.
func New(options Options, store *catalog.Store, holder *memindex.Holder, controller *status.Controller, logger *logging.Logger) *Indexer {
	return &Indexer{
		options:    options,
		store:      store,
		holder:     holder,
		controller: controller,
		logger:     logger,
	}
}

// Run executes a full index: Phase 1 publishes a preliminary memory index
// from a shallow home scan, Phase 2 completes coverage in parallel, and a
// background Goroutine then bulk-loads the catalog. Run returns once the
// full memory index is published and searchable; persistence completes
// asynchronously.
func (x *Indexer) Run() error {
	start := time.Now()
	x.controller.BeginIndexing()

	// Decide the walk layout. The home directory gets the two-phase
	// treatment when it falls under the scan root; otherwise the scan root
	// is walked directly.
	home := x.options.Home
	root := x.options.ScanRoot
	homeUnderRoot := home != "" && (home == root || isBelow(home, root))
	if !homeUnderRoot {
		home = root
	}

	walker := newWalker(x.options.Ignores, x.controller)

	// Phase 1: shallow scan of the home directory.
	x.logger.Infof("phase 1: shallow scan of %s (depth <= %d)", home, shallowDepth)
	shallow := walker.walk(home, walkOptions{maxDepth: shallowDepth})
	x.logger.Infof("phase 1 done: %d entries in %v", len(shallow), time.Since(start))

	// Publish the preliminary index so the host becomes searchable
	// immediately.
	preliminary := make([]index.CompactEntry, len(shallow))
	copy(preliminary, shallow)
	x.holder.Publish(memindex.Build(preliminary, x.logger.Sublogger("memindex")))

	// Phase 2: deep home scan and sibling roots in parallel.
	x.logger.Info("phase 2: deep scan and sibling roots")
	deepResults := make(chan []index.CompactEntry, 1)
	go func() {
		deepResults <- walker.walk(home, walkOptions{maxDepth: unboundedDepth, skipDepth: shallowDepth})
	}()
	var siblings []index.CompactEntry
	if homeUnderRoot && home != root {
		siblings = x.walkSiblings(walker, root, home)
	}
	deep := <-deepResults

	// Assemble the full entry vector and publish the complete index.
	entries := shallow
	entries = append(entries, deep...)
	entries = append(entries, siblings...)
	full := memindex.Build(entries, x.logger.Sublogger("memindex"))
	x.holder.Publish(full)
	x.logger.Infof("phase 2 done: %d entries in %v (permission errors: %d)",
		len(entries), time.Since(start), x.controller.PermissionErrors())

	// The engine is Ready as soon as the full index is live; persistence
	// continues in the background.
	x.controller.SetReady(int64(len(entries)), time.Now().Unix(), "")

	// Phase 3: background catalog persistence.
	go x.persist(full)

	// Done.
	return nil
}

// walkSiblings enumerates and walks the scan root's top-level directories
// other than the one containing the home directory, ordered so user-facing
// ones come first. The sibling roots themselves are materialized as entries
// too.
func (x *Indexer) walkSiblings(walker *walker, root, home string) []index.CompactEntry {
	children, err := os.ReadDir(root)
	if err != nil {
		if os.IsPermission(err) {
			x.controller.AddPermissionError()
		}
		return nil
	}

	// Compute the home directory's top-level segment under the root so it
	// can be excluded from sibling coverage.
	homeTop := topSegmentBelow(home, root)

	// Collect candidate sibling names, pruning ignored ones.
	var names []string
	for _, child := range children {
		if !child.IsDir() || child.Type()&os.ModeSymlink != 0 {
			continue
		}
		name := child.Name()
		if name == homeTop {
			continue
		}
		if x.options.Ignores.SkipsSegment(name) {
			continue
		}
		if x.options.Ignores.ShouldSkip(index.JoinPath(root, name), true) {
			continue
		}
		names = append(names, name)
	}

	// Walk each sibling in priority order.
	var results []index.CompactEntry
	for _, name := range orderSiblingRoots(names) {
		siblingPath := index.JoinPath(root, name)
		if info, err := os.Lstat(siblingPath); err == nil {
			results = append(results, index.NewDirectory(root, name, info.ModTime().Unix()))
			x.controller.AddIndexed(1)
		}
		results = append(results, walker.walk(siblingPath, walkOptions{maxDepth: unboundedDepth})...)
	}
	return results
}

// persist bulk-loads the published entries into the catalog, frees the
// memory index once the catalog's name index exists, and invokes the
// completion callback.
func (x *Indexer) persist(full *memindex.Index) {
	runID, err := Persist(x.store, x.holder, x.controller, x.logger, full)
	if err != nil {
		x.logger.Errorf("background persistence failed: %v", err)
	}
	if x.options.OnPersisted != nil {
		x.options.OnPersisted(runID, err)
	}
}

// Persist implements the bulk-load handoff shared by the indexing paths:
// enter bulk-load mode, write the published entries in batches, sweep stale
// rows, rebuild indices (freeing the memory index as soon as the name index
// exists), and refresh the status counters.
func Persist(store *catalog.Store, holder *memindex.Holder, controller *status.Controller, logger *logging.Logger, full *memindex.Index) (int64, error) {
	start := time.Now()

	// Allocate the run identifier and enter bulk-load mode.
	runID, err := store.NextRunID()
	if err != nil {
		return 0, err
	}
	if err := store.BeginBulkLoad(); err != nil {
		return runID, err
	}

	// Write the entries in batches.
	entries := full.Entries()
	if err := store.BulkInsert(entries, runID, func(written int) {
		logger.Debugf("bulk load: %d/%d rows", written, len(entries))
	}); err != nil {
		return runID, err
	}

	// Finalize.
	if err := store.FinishBulkLoad(runID, holder.Free); err != nil {
		return runID, err
	}

	// Refresh the status counters from the catalog.
	count, err := store.Count()
	if err != nil {
		return runID, err
	}
	controller.UpdateCounts(count, time.Now().Unix())
	logger.Infof("catalog persisted: %d rows in %v", count, time.Since(start))

	// Done.
	return runID, nil
}

// isBelow indicates whether or not a path falls strictly below a root.
func isBelow(path, root string) bool {
	if len(path) <= len(root) {
		return false
	}
	if path[:len(root)] != root {
		return false
	}
	if root[len(root)-1] == os.PathSeparator {
		return true
	}
	return path[len(root)] == os.PathSeparator
}

// topSegmentBelow computes the first path segment of path below root.
func topSegmentBelow(path, root string) string {
	if !isBelow(path, root) {
		return ""
	}
	remainder := path[len(root):]
	for len(remainder) > 0 && remainder[0] == os.PathSeparator {
		remainder = remainder[1:]
	}
	for i := 0; i < len(remainder); i++ {
		if remainder[i] == os.PathSeparator {
			return remainder[:i]
		}
	}
	return remainder
}

// ErrIndexingInProgress indicates that a full index was requested while one
// was already running.
var ErrIndexingInProgress = errors.New("indexing already in progress")
