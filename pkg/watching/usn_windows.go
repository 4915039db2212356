//go:build windows
// +build windows

package watching

import (
	"strings"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/charlesoon/everything/pkg/catalog"
	"github.com/charlesoon/everything/pkg/ignore"
	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/logging"
	"github.com/charlesoon/everything/pkg/mft"
	"github.com/charlesoon/everything/pkg/state"
)

const (
	// usnReasonMask selects the reasons the watcher reads: create, delete,
	// and both rename halves. Metadata-only reasons would burn CPU on
	// stat and catalog work without changing what a name search finds.
	usnReasonMask = mft.ReasonFileCreate | mft.ReasonFileDelete |
		mft.ReasonRenameOldName | mft.ReasonRenameNewName
	// usnDebounce is the accumulation window before a flush is applied.
	usnDebounce = 5 * time.Second
	// usnPersistInterval is the cadence at which the journal position and
	// heartbeat are flushed.
	usnPersistInterval = 30 * time.Second
	// usnFallbackCacheClearInterval is the cadence at which the positive
	// fallback cache is cleared, handling directories that moved.
	usnFallbackCacheClearInterval = 120 * time.Second
	// usnPollBusy is the poll delay while records are flowing.
	usnPollBusy = 100 * time.Millisecond
	// usnPollIdle is the poll delay while the journal is quiet.
	usnPollIdle = 2 * time.Second
	// usnFallbackCacheCapacity bounds the positive fallback cache.
	usnFallbackCacheCapacity = 8192
)

// USNWatcher is the Windows change watcher: a polling loop over the raw
// volume's USN journal that coalesces creates, deletes, and renames into
// catalog mutations. Its caches are owned by the polling Goroutine and never
// shared.
type USNWatcher struct {
	// volume is the raw volume, owned (and closed) by the watcher.
	volume *mft.Volume
	// journalID is the journal identity the position belongs to.
	journalID uint64
	// usn is the current journal read position.
	usn int64
	// scanRoot is the lowercased scan root used for containment checks.
	scanRoot string
	// pathCache maps directory FRNs to paths, populated from the MFT scan;
	// hits cost no syscall.
	pathCache map[uint64]string
	// outsideRoot is the negative cache of FRNs known outside the scan root.
	outsideRoot map[uint64]bool
	// fallback is the per-process positive cache for FRNs resolved via
	// syscall after the scan.
	fallback *lru.Cache
	// pendingRenames holds rename-from halves keyed by FRN.
	pendingRenames map[uint64]pendingRename
	// pending are classified changes awaiting flush.
	pending []Change
	// applier applies flushes.
	applier *Applier
	// store persists the journal position; the watcher reuses the pooled
	// connection for its lifetime.
	store *catalog.Store
	// ignores is the ignore rule set.
	ignores *ignore.Set
	// logger is the watcher's logger.
	logger *logging.Logger
	// coalescer debounces flushes.
	coalescer *state.Coalescer
	// stop signals termination.
	stop chan struct{}
	// done is closed when the polling loop exits.
	done chan struct{}
}

// NewUSNWatcher creates a USN watcher that resumes reading at startUSN. The
// path cache and negative cache typically come from the MFT scan's handoff;
// on a resumed start they begin empty and the syscall rung fills in.
func NewUSNWatcher(
	volume *mft.Volume,
	journalID uint64,
	startUSN int64,
	scanRoot string,
	pathCache map[uint64]string,
	outsideRoot map[uint64]bool,
	applier *Applier,
	store *catalog.Store,
	ignores *ignore.Set,
	logger *logging.Logger,
) *USNWatcher {
	if pathCache == nil {
		pathCache = make(map[uint64]string)
	}
	if outsideRoot == nil {
		outsideRoot = make(map[uint64]bool)
	}
	return &USNWatcher{
		volume:         volume,
		journalID:      journalID,
		usn:            startUSN,
		scanRoot:       strings.ToLower(scanRoot),
		pathCache:      pathCache,
		outsideRoot:    outsideRoot,
		fallback:       lru.New(usnFallbackCacheCapacity),
		pendingRenames: make(map[uint64]pendingRename),
		applier:        applier,
		store:          store,
		ignores:        ignores,
		logger:         logger,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start launches the polling loop.
func (w *USNWatcher) Start() error {
	w.coalescer = state.NewCoalescer(usnDebounce)
	go w.run()
	return nil
}

// Stop terminates the polling loop, waits for it to exit, and closes the
// volume.
func (w *USNWatcher) Stop() {
	close(w.stop)
	<-w.done
	w.coalescer.Terminate()
	w.volume.Close()
}

// run is the polling loop.
func (w *USNWatcher) run() {
	defer close(w.done)
	persist := time.NewTicker(usnPersistInterval)
	defer persist.Stop()
	clearFallback := time.NewTicker(usnFallbackCacheClearInterval)
	defer clearFallback.Stop()
	poll := time.NewTimer(0)
	defer poll.Stop()
	for {
		select {
		case <-w.stop:
			w.flush()
			w.persistPosition()
			return
		case <-poll.C:
			busy := w.poll()
			if busy {
				poll.Reset(usnPollBusy)
			} else {
				poll.Reset(usnPollIdle)
			}
		case <-w.coalescer.Events():
			w.flush()
		case <-persist.C:
			w.persistPosition()
		case <-clearFallback.C:
			w.fallback.Clear()
		}
	}
}

// poll reads and classifies one journal buffer, returning whether or not
// records were flowing.
func (w *USNWatcher) poll() bool {
	records, next, err := w.volume.ReadJournal(w.usn, w.journalID, usnReasonMask)
	if err != nil {
		// Transient read failures back off to the idle poll delay.
		w.logger.Warnf("journal read failed: %v", err)
		return false
	}
	w.usn = next
	for i := range records {
		w.classify(&records[i])
	}
	w.expireRenames()
	if len(w.pending) > 0 {
		w.coalescer.Strobe()
	}
	return len(records) > 0
}

// classify resolves a record's path and appends the corresponding change.
// Records that can't be resolved, fall outside the scan root, or match
// ignore rules are skipped silently.
func (w *USNWatcher) classify(record *mft.Record) {
	parentPath, ok := w.resolveParent(record.ParentFRN)
	if !ok {
		return
	}
	path := index.JoinPath(parentPath, record.Name)
	if w.ignores.ShouldSkip(path, record.IsDirectory()) {
		return
	}

	frn := record.FRN & (1<<48 - 1)
	switch {
	case record.Reason&mft.ReasonRenameOldName != 0:
		// Hold the old half for pairing.
		w.pendingRenames[frn] = pendingRename{oldPath: path, recordedAt: time.Now()}
	case record.Reason&mft.ReasonRenameNewName != 0:
		if half, ok := w.pendingRenames[frn]; ok && time.Since(half.recordedAt) <= renamePairTimeout {
			delete(w.pendingRenames, frn)
			w.pending = append(w.pending, Change{Kind: ChangeRename, Path: path, OldPath: half.oldPath})
		} else {
			w.pending = append(w.pending, Change{Kind: ChangeCreate, Path: path})
		}
		// A renamed directory invalidates its cached path.
		if record.IsDirectory() {
			delete(w.pathCache, frn)
			w.fallback.Remove(frn)
		}
	case record.Reason&mft.ReasonFileDelete != 0:
		w.pending = append(w.pending, Change{Kind: ChangeDelete, Path: path})
		if record.IsDirectory() {
			delete(w.pathCache, frn)
			w.fallback.Remove(frn)
		}
	case record.Reason&mft.ReasonFileCreate != 0:
		w.pending = append(w.pending, Change{Kind: ChangeCreate, Path: path})
	}
}

// resolveParent resolves a parent FRN to a path via the resolution ladder:
// the MFT-scan path cache, the negative cache, the positive fallback cache,
// and finally a kernel call whose result is interned into the appropriate
// cache.
func (w *USNWatcher) resolveParent(parentFRN uint64) (string, bool) {
	parentFRN &= 1<<48 - 1

	// Rung 1: the scan-time path cache.
	if path, ok := w.pathCache[parentFRN]; ok {
		return path, true
	}

	// Rung 2: the negative cache.
	if w.outsideRoot[parentFRN] {
		return "", false
	}

	// Rung 3: the positive fallback cache.
	if value, ok := w.fallback.Get(parentFRN); ok {
		return value.(string), true
	}

	// Rung 4: the kernel call, interned according to containment.
	path, err := w.volume.ResolvePathByFRN(parentFRN)
	if err != nil {
		return "", false
	}
	if !w.underScanRoot(path) {
		w.outsideRoot[parentFRN] = true
		return "", false
	}
	w.fallback.Add(parentFRN, path)
	return path, true
}

// underScanRoot indicates whether or not a path falls at or below the scan
// root.
func (w *USNWatcher) underScanRoot(path string) bool {
	lowered := strings.ToLower(path)
	if lowered == w.scanRoot {
		return true
	}
	root := w.scanRoot
	if !strings.HasSuffix(root, `\`) {
		root += `\`
	}
	return strings.HasPrefix(lowered, root)
}

// expireRenames decays unpaired rename halves older than the pairing window
// into deletes.
func (w *USNWatcher) expireRenames() {
	now := time.Now()
	for frn, half := range w.pendingRenames {
		if now.Sub(half.recordedAt) > renamePairTimeout {
			delete(w.pendingRenames, frn)
			w.pending = append(w.pending, Change{Kind: ChangeDelete, Path: half.oldPath})
		}
	}
}

// flush applies the accumulated changes.
func (w *USNWatcher) flush() {
	changes := w.pending
	w.pending = nil
	w.applier.Apply(changes)
}

// persistPosition flushes the journal position, identity, and heartbeat.
func (w *USNWatcher) persistPosition() {
	if err := w.store.SetMetaInt(catalog.MetaLastUSN, w.usn); err != nil {
		w.logger.Warnf("unable to persist USN position: %v", err)
	}
	if err := w.store.SetMetaInt(catalog.MetaJournalID, int64(w.journalID)); err != nil {
		w.logger.Warnf("unable to persist journal id: %v", err)
	}
	if err := w.store.SetMetaInt(catalog.MetaLastActiveTime, time.Now().Unix()); err != nil {
		w.logger.Warnf("unable to persist heartbeat: %v", err)
	}
}
