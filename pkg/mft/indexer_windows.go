//go:build windows
// +build windows

package mft

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/charlesoon/everything/pkg/catalog"
	"github.com/charlesoon/everything/pkg/ignore"
	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/indexer"
	"github.com/charlesoon/everything/pkg/logging"
	"github.com/charlesoon/everything/pkg/memindex"
	"github.com/charlesoon/everything/pkg/status"
)

// Options configure an MFT indexer run.
type Options struct {
	// ScanRoot is the top-level directory to cover.
	ScanRoot string
	// Ignores is the ignore rule set.
	Ignores *ignore.Set
	// OnPersisted is invoked (if non-nil) once background persistence
	// completes. The USN watcher is started from this callback with the
	// scan's handoff state.
	OnPersisted func(runID int64, handoff *Handoff, err error)
}

// Handoff is the state the MFT scan passes to the USN watcher so that most
// records resolve without any syscall.
type Handoff struct {
	// Volume is the open raw volume, whose ownership transfers to the
	// watcher.
	Volume *Volume
	// Journal is the journal metadata captured at scan time.
	Journal *JournalData
	// PathCache maps kept directory FRNs to their absolute paths.
	PathCache map[uint64]string
	// OutsideRoot is the pre-warmed negative cache: directory FRNs known to
	// be outside the scan root.
	OutsideRoot map[uint64]bool
}

// fileRecord is the Pass 1 capture for a file: parent FRN, name, and USN
// timestamp only.
type fileRecord struct {
	// parentFRN is the file's parent directory FRN (masked).
	parentFRN uint64
	// name is the file's base name.
	name string
	// timestamp is the file's USN record timestamp.
	timestamp int64
}

// Indexer is the admin-fast MFT indexer.
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

// New creates an MFT indexer.
func New(options Options, store *catalog.Store, holder *memindex.Holder, controller *status.Controller, logger *logging.Logger) *Indexer {
	return &Indexer{
		options:    options,
		store:      store,
		holder:     holder,
		controller: controller,
		logger:     logger,
	}
}

// Run executes the two-pass MFT scan. It fails fast (before any state
// transition) if the raw volume can't be opened, so the caller can fall back
// to the non-admin indexer.
func (x *Indexer) Run() error {
	// Determine the drive letter from the scan root.
	root := x.options.ScanRoot
	if len(root) < 2 || root[1] != ':' {
		return errors.New("scan root has no drive letter")
	}
	driveLetter := root[0]

	// Open the raw volume. Failure here is the privilege check.
	volume, err := OpenVolume(driveLetter)
	if err != nil {
		return err
	}

	// Query the journal before scanning so the watcher can resume from a
	// position that covers the scan itself.
	journal, err := volume.QueryJournal()
	if err != nil {
		volume.Close()
		return err
	}

	start := time.Now()
	x.controller.BeginIndexing()

	// Pass 1: enumerate USN records over the entire volume. Directories feed
	// the path resolver; files are captured as (parent FRN, name, timestamp)
	// triples only.
	resolver := NewPathResolverWithCapacity(volume.Drive(), 1<<20)
	dirTimes := make(map[uint64]int64, 1<<20)
	var files []fileRecord
	err = volume.EnumerateMFT(0, journal.NextUSN, func(record *Record) {
		x.controller.AddScanned(1)
		if record.IsDirectory() {
			frn := record.FRN & frnMask
			resolver.AddRecord(record.FRN, record.ParentFRN, record.Name)
			dirTimes[frn] = record.Timestamp
		} else {
			files = append(files, fileRecord{
				parentFRN: record.ParentFRN & frnMask,
				name:      record.Name,
				timestamp: record.Timestamp,
			})
		}
	})
	if err != nil {
		volume.Close()
		return err
	}
	x.logger.Infof("pass 1 done: %d directories, %d files in %v",
		resolver.Len(), len(files), time.Since(start))

	// Pass 1.5: prune. Locate the scan root, exclude the FRNs of
	// absolute-path ignore roots, and BFS the kept directory set,
	// pre-resolving every kept path.
	rootFRN, ok := resolver.FindFRNByPath(root)
	if !ok {
		volume.Close()
		return errors.Errorf("scan root %s not present in MFT", root)
	}
	excluded := make(map[uint64]bool)
	for _, ignoreRoot := range x.options.Ignores.Roots() {
		if frn, ok := resolver.FindFRNByPath(strings.ReplaceAll(ignoreRoot, "/", `\`)); ok {
			excluded[frn] = true
		}
	}
	kept := resolver.CollectSubtreePruned(rootFRN, x.options.Ignores.SkipsSegment, excluded)

	// Compute the negative cache before the record maps go away: every
	// enumerated directory that the prune didn't keep is known to be outside
	// the scan root.
	outsideRoot := make(map[uint64]bool)
	for frn := range dirTimes {
		if !kept[frn] {
			outsideRoot[frn] = true
		}
	}

	// Tear down the resolver progressively: the children map first, then the
	// record map, leaving only the path cache.
	resolver.DropChildrenMap()
	resolver.DropRecords()
	pathCache := resolver.PathCache()
	x.logger.Infof("pass 1.5 done: %d directories kept, %d outside root", len(kept), len(outsideRoot))

	// Pass 2: materialize. Directories come straight from the path cache;
	// files filter to kept parents and read their metadata from per-directory
	// stat caches built in parallel.
	entries := x.materialize(kept, dirTimes, files, pathCache)
	x.logger.Infof("pass 2 done: %d entries in %v (permission errors: %d)",
		len(entries), time.Since(start), x.controller.PermissionErrors())

	// Handoff: publish the memory index so the host becomes searchable, then
	// persist in the background and deliver the watcher state.
	full := memindex.Build(entries, x.logger.Sublogger("memindex"))
	x.holder.Publish(full)
	x.controller.SetReady(int64(len(entries)), time.Now().Unix(), "")

	handoff := &Handoff{
		Volume:      volume,
		Journal:     journal,
		PathCache:   pathCache,
		OutsideRoot: outsideRoot,
	}
	go func() {
		runID, err := indexer.Persist(x.store, x.holder, x.controller, x.logger, full)
		if err != nil {
			x.logger.Errorf("background persistence failed: %v", err)
		}
		if x.options.OnPersisted != nil {
			x.options.OnPersisted(runID, handoff, err)
		}
	}()

	// Done.
	return nil
}

// materialize converts the kept directory set and the filtered file records
// into compact entries, running the per-directory stat caches on a parallel
// work pool.
func (x *Indexer) materialize(kept map[uint64]bool, dirTimes map[uint64]int64, files []fileRecord, pathCache map[uint64]string) []index.CompactEntry {
	entries := make([]index.CompactEntry, 0, len(kept)+len(files)/2)

	// Directories: path-cache lookup, skip-path check, mtime from the USN
	// timestamp.
	for frn := range kept {
		path, ok := pathCache[frn]
		if !ok {
			continue
		}
		if x.options.Ignores.ShouldSkip(path, true) {
			continue
		}
		dir, name := index.SplitPath(path)
		if name == "" {
			continue
		}
		entries = append(entries, index.NewDirectory(dir, name, dirTimes[frn]))
		x.controller.AddIndexed(1)
	}

	// Group kept files by parent directory.
	byParent := make(map[uint64][]fileRecord)
	for _, file := range files {
		if kept[file.parentFRN] {
			byParent[file.parentFRN] = append(byParent[file.parentFRN], file)
		}
	}

	// Build per-directory stat caches in parallel: one enumeration per
	// unique parent directory reads the size and mtime of every child, which
	// is vastly cheaper than per-file stat calls.
	var lock sync.Mutex
	slots := semaphore.NewWeighted(int64(runtime.NumCPU()))
	group, ctx := errgroup.WithContext(context.Background())
	for parentFRN, children := range byParent {
		parentPath, ok := pathCache[parentFRN]
		if !ok {
			continue
		}
		children, parentPath := children, parentPath
		if err := slots.Acquire(ctx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer slots.Release(1)

			// One enumeration yields metadata for every child.
			stats := buildDirStatCache(parentPath)

			// Materialize the directory's files.
			batch := make([]index.CompactEntry, 0, len(children))
			for _, file := range children {
				filePath := index.JoinPath(parentPath, file.name)
				if x.options.Ignores.ShouldSkip(filePath, false) {
					continue
				}
				if metadata, ok := stats[strings.ToLower(file.name)]; ok {
					batch = append(batch, index.NewFile(parentPath, file.name, metadata.size, metadata.mtime))
				} else {
					// The child wasn't enumerable; fall back to the USN
					// timestamp without a size.
					entry := index.NewFileWithoutMetadata(parentPath, file.name)
					entry.MTime = file.timestamp
					batch = append(batch, entry)
				}
				x.controller.AddIndexed(1)
			}

			lock.Lock()
			entries = append(entries, batch...)
			lock.Unlock()
			return nil
		})
	}
	group.Wait()

	// Done.
	return entries
}

// childMetadata is one stat cache record.
type childMetadata struct {
	// size is the child's size in bytes.
	size int64
	// mtime is the child's modification time in Unix seconds.
	mtime int64
}

// buildDirStatCache enumerates a directory once, capturing the size and
// mtime of every child keyed by lowercased name. On Windows the directory
// enumeration itself carries the metadata, so no per-child stat calls are
// issued.
func buildDirStatCache(dir string) map[string]childMetadata {
	children, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	stats := make(map[string]childMetadata, len(children))
	for _, child := range children {
		if child.IsDir() {
			continue
		}
		info, err := child.Info()
		if err != nil {
			continue
		}
		stats[strings.ToLower(child.Name())] = childMetadata{
			size:  info.Size(),
			mtime: info.ModTime().Unix(),
		}
	}
	return stats
}
