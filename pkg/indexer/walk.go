package indexer

import (
	"context"
	"io/fs"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/charlesoon/everything/pkg/ignore"
	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/status"
)

const (
	// unboundedDepth disables the walker's depth limit.
	unboundedDepth = -1
	// progressInterval is the number of scanned objects between progress
	// emissions.
	progressInterval = 4096
)

// walkOptions bound a single parallel walk.
type walkOptions struct {
	// maxDepth is the maximum recursion depth relative to the walk root, or
	// unboundedDepth for no limit. The root itself is depth 0.
	maxDepth int
	// skipDepth suppresses entry emission at depths at or below its value,
	// letting a deep pass avoid re-emitting what a shallow pass already
	// covered. Zero suppresses only the root.
	skipDepth int
}

// walker performs parallel directory walks with ignore-based pruning. Walks
// share a work-stealing-style semaphore sized to the CPU count: subtree
// descents run concurrently when a slot is free and inline otherwise.
type walker struct {
	// ignores is the ignore rule set used for pruning.
	ignores *ignore.Set
	// controller receives progress counters and permission tallies.
	controller *status.Controller
	// slots bounds walk concurrency.
	slots *semaphore.Weighted
}

// newWalker creates a walker with concurrency matched to the CPU count.
func newWalker(ignores *ignore.Set, controller *status.Controller) *walker {
	return &walker{
		ignores:    ignores,
		controller: controller,
		slots:      semaphore.NewWeighted(int64(runtime.NumCPU())),
	}
}

// walk enumerates a root, returning the surviving entries. Permission errors
// are tallied and skipped; they never fail the walk.
func (w *walker) walk(root string, options walkOptions) []index.CompactEntry {
	collector := &entryCollector{}
	group, ctx := errgroup.WithContext(context.Background())
	w.walkDirectory(ctx, group, collector, root, 0, options)
	group.Wait()
	return collector.take()
}

// entryCollector accumulates entries from concurrent subtree walks.
type entryCollector struct {
	// lock guards entries.
	lock sync.Mutex
	// entries are the accumulated entries.
	entries []index.CompactEntry
}

// add appends a batch of entries.
func (c *entryCollector) add(batch []index.CompactEntry) {
	if len(batch) == 0 {
		return
	}
	c.lock.Lock()
	c.entries = append(c.entries, batch...)
	c.lock.Unlock()
}

// take returns the accumulated entries, resetting the collector.
func (c *entryCollector) take() []index.CompactEntry {
	c.lock.Lock()
	defer c.lock.Unlock()
	entries := c.entries
	c.entries = nil
	return entries
}

// walkDirectory enumerates a single directory, emitting entries for its
// children and descending into subdirectories. Descents run on the group
// when a concurrency slot is available and inline otherwise.
func (w *walker) walkDirectory(ctx context.Context, group *errgroup.Group, collector *entryCollector, dir string, depth int, options walkOptions) {
	// Enumerate the directory, tallying permission failures.
	children, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			w.controller.AddPermissionError()
		}
		return
	}

	// Evaluate each child, batching emitted entries per directory.
	batch := make([]index.CompactEntry, 0, len(children))
	for _, child := range children {
		name := child.Name()

		// Prune ignored children before any further work.
		if w.ignores.SkipsSegment(name) {
			continue
		}
		childPath := index.JoinPath(dir, name)
		isDir := child.IsDir()
		if w.ignores.ShouldSkip(childPath, isDir) {
			continue
		}

		// Track scan progress.
		if scanned := w.controller.AddScanned(1); scanned%progressInterval == 0 {
			w.controller.PublishProgress(childPath)
		}

		// Materialize the entry unless the shallow pass already covered this
		// depth.
		childDepth := depth + 1
		if childDepth > options.skipDepth {
			if entry, ok := w.materialize(dir, child); ok {
				batch = append(batch, entry)
				w.controller.AddIndexed(1)
			}
		}

		// Descend into subdirectories within the depth bound. Symbolic links
		// and other reparse-style children are never descended, avoiding
		// double coverage of linked trees.
		if isDir && child.Type()&fs.ModeSymlink == 0 {
			if options.maxDepth == unboundedDepth || childDepth < options.maxDepth {
				w.descend(ctx, group, collector, childPath, childDepth, options)
			}
		}
	}
	collector.add(batch)
}

// descend continues a walk into a subdirectory, concurrently if a slot is
// free.
func (w *walker) descend(ctx context.Context, group *errgroup.Group, collector *entryCollector, dir string, depth int, options walkOptions) {
	if w.slots.TryAcquire(1) {
		group.Go(func() error {
			defer w.slots.Release(1)
			w.walkDirectory(ctx, group, collector, dir, depth, options)
			return nil
		})
	} else {
		w.walkDirectory(ctx, group, collector, dir, depth, options)
	}
}

// materialize converts a directory child into a compact entry. Stat failures
// degrade to metadata-free entries for files and are tallied when they're
// permission failures.
func (w *walker) materialize(dir string, child os.DirEntry) (index.CompactEntry, bool) {
	info, err := child.Info()
	if err != nil {
		if os.IsPermission(err) {
			w.controller.AddPermissionError()
		}
		if child.IsDir() {
			return index.NewDirectory(dir, child.Name(), 0), true
		}
		return index.NewFileWithoutMetadata(dir, child.Name()), true
	}
	if child.IsDir() {
		return index.NewDirectory(dir, child.Name(), info.ModTime().Unix()), true
	}
	return index.NewFile(dir, child.Name(), info.Size(), info.ModTime().Unix()), true
}

// orderSiblingRoots orders top-level sibling directories so that user-facing
// ones are walked first and system ones last.
func orderSiblingRoots(names []string) []string {
	systemNames := map[string]bool{
		"windows":                   true,
		"program files":             true,
		"program files (x86)":       true,
		"programdata":               true,
		"recovery":                  true,
		"perflogs":                  true,
		"private":                   true,
		"system":                    true,
		"library":                   true,
		"applications":              true,
		"usr":                       true,
		"bin":                       true,
		"sbin":                      true,
		"etc":                       true,
		"var":                       true,
		"tmp":                       true,
		"opt":                       true,
		"dev":                       true,
		"proc":                      true,
		"sys":                       true,
	}
	rank := func(name string) int {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, ".") || strings.HasPrefix(lower, "$") {
			return 2
		}
		if systemNames[lower] {
			return 1
		}
		return 0
	}
	ordered := make([]string, len(names))
	copy(ordered, names)
	sort.SliceStable(ordered, func(a, b int) bool {
		rankA, rankB := rank(ordered[a]), rank(ordered[b])
		if rankA != rankB {
			return rankA < rankB
		}
		return strings.ToLower(ordered[a]) < strings.ToLower(ordered[b])
	})
	return ordered
}
