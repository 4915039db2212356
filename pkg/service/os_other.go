//go:build !darwin && !windows
// +build !darwin,!windows

package service

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// openPath delegates opening to the desktop environment.
func openPath(path string) error {
	return exec.Command("xdg-open", path).Run()
}

// revealPath opens the containing directory; freedesktop has no portable
// select-in-file-manager verb.
func revealPath(path string) error {
	return exec.Command("xdg-open", filepath.Dir(path)).Run()
}

// platformTrashDirectory computes the XDG trash files directory.
func platformTrashDirectory(path string) (string, error) {
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, "Trash", "files"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to compute home directory")
	}
	return filepath.Join(home, ".local", "share", "Trash", "files"), nil
}

// trashPath moves a path into the trash files directory.
func trashPath(path string) error {
	target, err := trashDirectoryFor(path)
	if err != nil {
		return err
	}
	return os.Rename(path, target)
}
