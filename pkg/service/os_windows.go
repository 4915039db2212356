//go:build windows
// +build windows

package service

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// openPath delegates opening to the shell.
func openPath(path string) error {
	return exec.Command("cmd", "/C", "start", "", path).Run()
}

// revealPath shows the path selected in an Explorer window.
func revealPath(path string) error {
	// Explorer returns a nonzero exit code even on success, so its error is
	// ignored once the process launches.
	command := exec.Command("explorer", "/select,", path)
	if err := command.Start(); err != nil {
		return err
	}
	go command.Wait()
	return nil
}

// platformTrashDirectory computes a per-user trash directory. The shell's
// recycle bin isn't writable directly, so trashed entries land in an
// application-owned trash folder under the local application data
// directory.
func platformTrashDirectory(path string) (string, error) {
	base := os.Getenv("LOCALAPPDATA")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "unable to compute home directory")
		}
		base = filepath.Join(home, "AppData", "Local")
	}
	return filepath.Join(base, "everything", "Trash"), nil
}

// trashPath moves a path into the application trash folder.
func trashPath(path string) error {
	target, err := trashDirectoryFor(path)
	if err != nil {
		return err
	}
	return os.Rename(path, target)
}
