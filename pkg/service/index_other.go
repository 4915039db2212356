//go:build !windows
// +build !windows

package service

import (
	"os"

	"github.com/charlesoon/everything/pkg/indexer"
)

// runFullIndex runs the parallel walk indexer. There is no privileged fast
// path off Windows.
func (s *Service) runFullIndex() error {
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
			stop, _, startErr := s.startPlatformWatcher(false)
			if startErr != nil {
				s.logger.Warnf("unable to start watcher: %v", startErr)
			}
			s.indexingFinished(stop)
		},
	}, s.store, s.holder, s.controller, s.logger.Sublogger("indexer"))
	return walker.Run()
}

// startWatcher starts the live watcher during fast startup, resuming from
// persisted state where the platform allows. It reports whether or not the
// persisted state was usable (it always is off Windows; the directory
// watcher and FSEvents replay both tolerate gaps, which catchup closes).
func (s *Service) startWatcher() (bool, error) {
	stop, resumed, err := s.startPlatformWatcher(true)
	if err != nil {
		return true, err
	}
	s.lock.Lock()
	s.stopWatcher = stop
	s.lock.Unlock()
	return resumed, nil
}
