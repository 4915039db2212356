//go:build darwin
// +build darwin

package service

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// openPath delegates opening to the Finder.
func openPath(path string) error {
	return exec.Command("open", path).Run()
}

// revealPath shows the path in a Finder window.
func revealPath(path string) error {
	return exec.Command("open", "-R", path).Run()
}

// platformTrashDirectory computes the user trash directory.
func platformTrashDirectory(path string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to compute home directory")
	}
	return filepath.Join(home, ".Trash"), nil
}

// trashPath moves a path into the user trash.
func trashPath(path string) error {
	target, err := trashDirectoryFor(path)
	if err != nil {
		return err
	}
	return os.Rename(path, target)
}
