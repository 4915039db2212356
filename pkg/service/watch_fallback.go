//go:build !windows && (!darwin || !cgo)
// +build !windows
// +build !darwin !cgo

package service

import (
	"github.com/charlesoon/everything/pkg/settings"
	"github.com/charlesoon/everything/pkg/watching"
)

// startPlatformWatcher starts the recursive directory-change fallback
// watcher over the indexed roots.
func (s *Service) startPlatformWatcher(resume bool) (func(), bool, error) {
	roots := watching.WatchRoots(s.settings.ScanRoot, s.ignores)
	pathignoreFile, _ := settings.FilePath()
	watcher := watching.NewDirChangeWatcher(
		roots, s.applier, s.ignores, s.store, s.bus,
		pathignoreFile,
		s.logger.Sublogger("dirwatch"),
	)
	if err := watcher.Start(); err != nil {
		return nil, true, err
	}
	return watcher.Stop, true, nil
}
