// Package catchup reconciles filesystem changes that occurred while the
// watcher was offline: on startup, when the catalog exists and is complete
// but watcher state is absent or stale, it diffs the period since the last
// heartbeat. Windows can delegate to the system search service; everywhere
// else a directory mtime scan applies.
package catchup

import (
	"io/fs"
	"path/filepath"
	"time"

	"github.com/charlesoon/everything/pkg/catalog"
	"github.com/charlesoon/everything/pkg/events"
	"github.com/charlesoon/everything/pkg/ignore"
	"github.com/charlesoon/everything/pkg/logging"
	"github.com/charlesoon/everything/pkg/status"
	"github.com/charlesoon/everything/pkg/watching"
)

// Engine runs post-startup catchup.
type Engine struct {
	// scanRoot is the indexed root.
	scanRoot string
	// store is the persistent catalog.
	store *catalog.Store
	// applier reconciles directories against the catalog.
	applier *watching.Applier
	// ignores prunes the scan.
	ignores *ignore.Set
	// controller is the status controller.
	controller *status.Controller
	// bus is the event bus, possibly nil.
	bus *events.Bus
	// logger is the engine's logger.
	logger *logging.Logger
}

// NewEngine creates a catchup engine.
func NewEngine(
	scanRoot string,
	store *catalog.Store,
	applier *watching.Applier,
	ignores *ignore.Set,
	controller *status.Controller,
	bus *events.Bus,
	logger *logging.Logger,
) *Engine {
	return &Engine{
		scanRoot:   scanRoot,
		store:      store,
		applier:    applier,
		ignores:    ignores,
		controller: controller,
		bus:        bus,
		logger:     logger,
	}
}

// Run reconciles changes since lastActive. The system search service is
// consulted first where available; the directory mtime scan covers the rest.
// Both paths end by invalidating search caches and refreshing counts.
func (e *Engine) Run(lastActive int64) error {
	start := time.Now()
	e.logger.Infof("catchup: reconciling changes since %s",
		time.Unix(lastActive, 0).Format(time.RFC3339))

	// Try the system search service first.
	reconciled := 0
	if paths, ok := e.systemSearchPaths(lastActive); ok {
		reconciled = e.applyPaths(paths)
		e.logger.Infof("catchup: system search reconciled %d directories", reconciled)
	} else {
		// Fall back to the directory mtime scan. Files whose mtime changed
		// while their parent directory's did not are missed here until the
		// next full index.
		reconciled = e.mtimeScan(lastActive)
		e.logger.Infof("catchup: mtime scan reconciled %d directories", reconciled)
	}

	// Invalidate cached results, refresh counters, and present Ready.
	e.store.InvalidateSearchCache()
	now := time.Now().Unix()
	count, err := e.store.RefreshCachedCounts(now)
	if err != nil {
		return err
	}
	e.controller.SetReady(count, now, "")
	e.logger.Infof("catchup complete in %v", time.Since(start))

	// Done.
	return nil
}

// applyPaths reconciles the parent directories of externally reported
// modified paths, returning the number of directories reconciled.
func (e *Engine) applyPaths(paths []string) int {
	// Collapse to unique parent directories.
	dirs := make(map[string]bool)
	for _, path := range paths {
		if e.ignores.ShouldSkip(path, false) {
			continue
		}
		dirs[filepath.Dir(path)] = true
	}

	// Reconcile each directory.
	reconciled := 0
	for dir := range dirs {
		if err := e.applier.RescanDirectory(dir); err != nil {
			e.logger.Warnf("catchup: unable to reconcile %s: %v", dir, err)
			continue
		}
		reconciled++
	}
	return reconciled
}

// mtimeScan walks directories under the scan root, pruning ignored subtrees,
// and reconciles any directory whose mtime exceeds the last active
// timestamp. It returns the number of directories reconciled.
func (e *Engine) mtimeScan(lastActive int64) int {
	reconciled := 0
	scanned := 0
	filepath.WalkDir(e.scanRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			return filepath.SkipDir
		}
		if path != e.scanRoot {
			if e.ignores.SkipsSegment(entry.Name()) || e.ignores.ShouldSkip(path, true) {
				return filepath.SkipDir
			}
		}

		// Emit progress periodically.
		scanned++
		if scanned%4096 == 0 {
			e.controller.PublishProgress(path)
		}

		// Reconcile directories whose mtime advanced past the heartbeat.
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Unix() > lastActive {
			if err := e.applier.RescanDirectory(path); err != nil {
				e.logger.Warnf("catchup: unable to reconcile %s: %v", path, err)
			} else {
				reconciled++
			}
		}
		return nil
	})
	return reconciled
}
