package service

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/recent"
)

// Open delegates opening the specified paths to the operating system.
func (s *Service) Open(paths []string) error {
	for _, path := range paths {
		if err := openPath(path); err != nil {
			return errors.Wrapf(err, "unable to open %s", path)
		}
	}
	return nil
}

// Reveal shows the specified paths in the platform file manager.
func (s *Service) Reveal(paths []string) error {
	for _, path := range paths {
		if err := revealPath(path); err != nil {
			return errors.Wrapf(err, "unable to reveal %s", path)
		}
	}
	return nil
}

// CopyPaths returns the newline-joined path list for clipboard placement by
// the host.
func (s *Service) CopyPaths(paths []string) string {
	return strings.Join(paths, "\n")
}

// MoveToTrash moves the specified paths to the platform trash, records the
// operations for watcher suppression, and applies the catalog deletions
// directly.
func (s *Service) MoveToTrash(paths []string) error {
	var trashed []string
	for _, path := range paths {
		// Record the operation before acting so the watcher's view of the
		// event can't race the record.
		s.recentOps.Record(recent.OpTrash, path)
		if err := trashPath(path); err != nil {
			return errors.Wrapf(err, "unable to trash %s", path)
		}
		trashed = append(trashed, path)
	}

	// Apply the catalog deletions directly; the watcher suppresses its own
	// copies of these events.
	if err := s.store.DeletePaths(trashed); err != nil {
		return err
	}
	s.afterMutation()
	return nil
}

// Rename renames a single entry, validating the new name, and returns the
// renamed entry. Validation failures surface immediately.
func (s *Service) Rename(path, newName string) (*index.Entry, error) {
	// Validate the new name.
	if newName == "" {
		return nil, errors.New("new name must not be empty")
	}
	if strings.ContainsAny(newName, `/\`) {
		return nil, errors.New("new name must not contain a path separator")
	}
	if newName == "." || newName == ".." {
		return nil, errors.New("new name must not be a relative reference")
	}

	// Compute the destination and reject collisions.
	dir, oldName := index.SplitPath(path)
	if oldName == "" {
		return nil, errors.New("path has no base name")
	}
	newPath := index.JoinPath(dir, newName)
	if newPath == path {
		return nil, errors.New("new name matches the current name")
	}
	if _, err := os.Lstat(newPath); err == nil {
		return nil, errors.New("destination already exists")
	}

	// Record the operation for watcher suppression, then rename.
	s.recentOps.Record(recent.OpRename, path, newPath)
	if err := os.Rename(path, newPath); err != nil {
		return nil, errors.Wrap(err, "unable to rename")
	}

	// Apply the catalog mutation directly.
	info, err := os.Lstat(newPath)
	if err != nil {
		return nil, errors.Wrap(err, "unable to stat renamed entry")
	}
	var entry index.CompactEntry
	if info.IsDir() {
		entry = index.NewDirectory(dir, newName, info.ModTime().Unix())
	} else {
		entry = index.NewFile(dir, newName, info.Size(), info.ModTime().Unix())
	}
	if err := s.store.DeletePaths([]string{path}); err != nil {
		return nil, err
	}
	if err := s.store.Upsert([]index.CompactEntry{entry}); err != nil {
		return nil, err
	}
	s.afterMutation()

	// Done.
	return entry.Entry(), nil
}

// afterMutation refreshes counters and signals live-search pollers after a
// service-issued catalog mutation.
func (s *Service) afterMutation() {
	now := time.Now().Unix()
	if count, err := s.store.RefreshCachedCounts(now); err == nil {
		s.controller.UpdateCounts(count, now)
	}
	s.tracker.NotifyOfChange()
}

// trashDirectoryFor computes the trash destination for a path, creating the
// trash directory if needed, and returns a collision-free target inside it.
func trashDirectoryFor(path string) (string, error) {
	trashDir, err := platformTrashDirectory(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(trashDir, 0700); err != nil {
		return "", errors.Wrap(err, "unable to create trash directory")
	}

	// Pick a collision-free name inside the trash.
	base := filepath.Base(path)
	target := filepath.Join(trashDir, base)
	for suffix := 1; ; suffix++ {
		if _, err := os.Lstat(target); os.IsNotExist(err) {
			return target, nil
		}
		target = filepath.Join(trashDir, base+"."+strconv.Itoa(suffix))
	}
}
