//go:build darwin && cgo
// +build darwin,cgo

package service

import (
	"github.com/charlesoon/everything/pkg/catalog"
	"github.com/charlesoon/everything/pkg/watching"
)

// startPlatformWatcher starts the FSEvents watcher. When resume is true and
// a persisted event id exists, history since that id is replayed before live
// delivery, closing the restart gap without a rescan.
func (s *Service) startPlatformWatcher(resume bool) (func(), bool, error) {
	sinceEventID, err := s.store.GetMetaInt(catalog.MetaMacLastEventID, 0)
	if err != nil {
		return nil, true, err
	}
	replay := resume && sinceEventID > 0
	watcher, err := watching.NewFSEventsWatcher(
		s.settings.ScanRoot, uint64(sinceEventID), replay,
		s.applier, s.store, s.logger.Sublogger("fsevents"),
	)
	if err != nil {
		return nil, true, err
	}
	if err := watcher.Start(); err != nil {
		return nil, true, err
	}
	return watcher.Stop, true, nil
}
