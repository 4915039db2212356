//go:build windows
// +build windows

package service

import (
	"os"

	"github.com/charlesoon/everything/pkg/catalog"
	"github.com/charlesoon/everything/pkg/indexer"
	"github.com/charlesoon/everything/pkg/mft"
	"github.com/charlesoon/everything/pkg/settings"
	"github.com/charlesoon/everything/pkg/watching"
)

// runFullIndex attempts the MFT fast path and falls back to the parallel
// walk indexer when the raw volume can't be opened. A fallback success never
// transitions to Error.
func (s *Service) runFullIndex() error {
	fast := mft.New(mft.Options{
		ScanRoot: s.settings.ScanRoot,
		Ignores:  s.ignores,
		OnPersisted: func(runID int64, handoff *mft.Handoff, err error) {
			if err != nil {
				handoff.Volume.Close()
				s.indexingFinished(nil)
				return
			}
			stop := s.startUSNWatcher(handoff)
			s.indexingFinished(stop)
		},
	}, s.store, s.holder, s.controller, s.logger.Sublogger("mft"))
	if err := fast.Run(); err == nil {
		return nil
	} else {
		s.logger.Infof("MFT path unavailable (%v); falling back to walk indexer", err)
	}

	// Fall back to the non-admin indexer with the directory-change watcher.
	home, _ := os.UserHomeDir()
	walker := indexer.New(indexer.Options{
		ScanRoot: s.settings.ScanRoot,
		Home:     home,
		Ignores:  s.ignores,
		OnPersisted: func(runID int64, err error) {
			if err != nil {
				s.indexingFinished(nil)
				return
			}
			stop := s.startDirChangeWatcher()
			s.indexingFinished(stop)
		},
	}, s.store, s.holder, s.controller, s.logger.Sublogger("indexer"))
	return walker.Run()
}

// startUSNWatcher starts the USN watcher from an MFT scan's handoff state,
// persisting its initial position immediately so a crash before the first
// periodic flush still resumes.
func (s *Service) startUSNWatcher(handoff *mft.Handoff) func() {
	startUSN := handoff.Journal.NextUSN
	if err := s.store.SetMetaInt(catalog.MetaLastUSN, startUSN); err != nil {
		s.logger.Warnf("unable to persist initial USN: %v", err)
	}
	if err := s.store.SetMetaInt(catalog.MetaJournalID, int64(handoff.Journal.JournalID)); err != nil {
		s.logger.Warnf("unable to persist journal id: %v", err)
	}
	watcher := watching.NewUSNWatcher(
		handoff.Volume, handoff.Journal.JournalID, startUSN,
		s.settings.ScanRoot, handoff.PathCache, handoff.OutsideRoot,
		s.applier, s.store, s.ignores, s.logger.Sublogger("usn"),
	)
	if err := watcher.Start(); err != nil {
		s.logger.Warnf("unable to start USN watcher: %v", err)
		return nil
	}
	return watcher.Stop
}

// startDirChangeWatcher starts the fallback watcher over the indexed roots.
func (s *Service) startDirChangeWatcher() func() {
	roots := watching.WatchRoots(s.settings.ScanRoot, s.ignores)
	pathignoreFile, _ := settings.FilePath()
	watcher := watching.NewDirChangeWatcher(
		roots, s.applier, s.ignores, s.store, s.bus,
		pathignoreFile,
		s.logger.Sublogger("dirwatch"),
	)
	if err := watcher.Start(); err != nil {
		s.logger.Warnf("unable to start directory watcher: %v", err)
		return nil
	}
	return watcher.Stop
}

// startWatcher starts the live watcher during fast startup. The resume
// protocol requires the stored journal identity to match the volume's
// current journal and the stored USN to remain within its valid range;
// otherwise a full re-index is required and false is returned.
func (s *Service) startWatcher() (bool, error) {
	root := s.settings.ScanRoot
	if len(root) >= 2 && root[1] == ':' {
		if volume, err := mft.OpenVolume(root[0]); err == nil {
			journal, err := volume.QueryJournal()
			if err != nil {
				volume.Close()
				return false, err
			}
			storedJournalID, _ := s.store.GetMetaInt(catalog.MetaJournalID, 0)
			storedUSN, _ := s.store.GetMetaInt(catalog.MetaLastUSN, -1)
			if uint64(storedJournalID) != journal.JournalID ||
				storedUSN < journal.FirstUSN || storedUSN > journal.NextUSN {
				// The stored position is unusable; only a full re-index
				// restores consistency.
				volume.Close()
				return false, nil
			}
			watcher := watching.NewUSNWatcher(
				volume, journal.JournalID, storedUSN,
				root, nil, nil,
				s.applier, s.store, s.ignores, s.logger.Sublogger("usn"),
			)
			if err := watcher.Start(); err != nil {
				volume.Close()
				return false, err
			}
			s.lock.Lock()
			s.stopWatcher = watcher.Stop
			s.lock.Unlock()
			return true, nil
		}
	}

	// Without volume access the directory-change watcher covers live
	// updates; catchup closes the offline gap.
	stop := s.startDirChangeWatcher()
	s.lock.Lock()
	s.stopWatcher = stop
	s.lock.Unlock()
	return true, nil
}
