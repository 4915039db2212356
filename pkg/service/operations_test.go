package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charlesoon/everything/pkg/settings"
)

// createTestService builds a service over a temporary catalog and working
// directory.
func createTestService(t *testing.T) (*Service, string) {
	t.Helper()
	workspace := t.TempDir()
	engine, err := New(&settings.Settings{
		ScanRoot:     workspace,
		DatabasePath: filepath.Join(workspace, "catalog.db"),
	}, nil)
	if err != nil {
		t.Fatal("unable to create service:", err)
	}
	t.Cleanup(engine.Stop)
	return engine, workspace
}

// writeFile creates a file with trivial content.
func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("content"), 0600); err != nil {
		t.Fatal("unable to write file:", err)
	}
}

type renameValidationTestCase struct {
	newName string
	message string
}

func TestRenameValidation(t *testing.T) {
	engine, workspace := createTestService(t)
	source := filepath.Join(workspace, "a.txt")
	writeFile(t, source)
	existing := filepath.Join(workspace, "b.txt")
	writeFile(t, existing)

	cases := []renameValidationTestCase{
		{newName: "", message: "empty name"},
		{newName: "x/y", message: "separator"},
		{newName: `x\y`, message: "separator"},
		{newName: ".", message: "relative reference"},
		{newName: "..", message: "relative reference"},
		{newName: "b.txt", message: "existing destination"},
		{newName: "a.txt", message: "unchanged name"},
	}
	for _, c := range cases {
		if _, err := engine.Rename(source, c.newName); err == nil {
			t.Errorf("rename should reject %s (%q)", c.message, c.newName)
		}
	}

	// The source must be untouched after the rejections.
	if _, err := os.Lstat(source); err != nil {
		t.Fatal("source should survive rejected renames")
	}
}

func TestRenameSucceeds(t *testing.T) {
	engine, workspace := createTestService(t)
	source := filepath.Join(workspace, "old.txt")
	writeFile(t, source)

	entry, err := engine.Rename(source, "new.txt")
	if err != nil {
		t.Fatal("rename failed:", err)
	}
	if entry.Name != "new.txt" || entry.Path != filepath.Join(workspace, "new.txt") {
		t.Fatal("renamed entry not as expected:", entry)
	}
	if _, err := os.Lstat(source); !os.IsNotExist(err) {
		t.Fatal("old path should be gone")
	}
	if _, err := os.Lstat(entry.Path); err != nil {
		t.Fatal("new path should exist")
	}

	// The catalog reflects the rename.
	if exists, _ := engine.store.PathExists(source); exists {
		t.Fatal("old path should be absent from the catalog")
	}
	if exists, _ := engine.store.PathExists(entry.Path); !exists {
		t.Fatal("new path should be present in the catalog")
	}
}

func TestCopyPaths(t *testing.T) {
	engine, _ := createTestService(t)
	joined := engine.CopyPaths([]string{"/a", "/b", "/c"})
	if joined != "/a\n/b\n/c" {
		t.Fatal("joined paths not as expected:", joined)
	}
}

func TestSearchParameterValidation(t *testing.T) {
	engine, _ := createTestService(t)

	// Invalid sort parameters surface immediately.
	if _, err := engine.Search("x", SearchOptions{SortBy: "bogus"}); err == nil {
		t.Fatal("invalid sort dimension should be rejected")
	}
	if _, err := engine.Search("x", SearchOptions{SortDir: "sideways"}); err == nil {
		t.Fatal("invalid sort direction should be rejected")
	}

	// Valid parameters execute against the (empty) catalog.
	if results, err := engine.Search("x", SearchOptions{Limit: 5000}); err != nil {
		t.Fatal("search failed:", err)
	} else if len(results) != 0 {
		t.Fatal("empty catalog should yield no results")
	}
}

func TestFileIconDeterministic(t *testing.T) {
	engine, _ := createTestService(t)
	first, err := engine.FileIcon("md")
	if err != nil {
		t.Fatal("icon generation failed:", err)
	}
	second, err := engine.FileIcon(".md")
	if err != nil {
		t.Fatal("icon generation failed:", err)
	}
	if string(first) != string(second) {
		t.Fatal("icons should be deterministic per extension")
	}
	if len(first) == 0 || string(first[1:4]) != "PNG" {
		t.Fatal("icon should be PNG-encoded")
	}
}
