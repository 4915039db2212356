package ignore

import (
	"testing"
)

type ignoreTestValue struct {
	path     string
	isDir    bool
	expected bool
}

type ignoreTestCase struct {
	rules []string
	tests []ignoreTestValue
}

func (c *ignoreTestCase) run(t *testing.T) {
	t.Helper()

	// Create a set without a home directory so the gitignore matcher stays
	// out of the picture.
	set := NewSet(c.rules, "", nil)

	// Verify test values, twice each to confirm idempotence.
	for _, value := range c.tests {
		if skipped := set.ShouldSkip(value.path, value.isDir); skipped != value.expected {
			t.Errorf("skip behavior not as expected for %s: got %v", value.path, skipped)
		}
		if skipped := set.ShouldSkip(value.path, value.isDir); skipped != value.expected {
			t.Errorf("skip behavior not idempotent for %s", value.path)
		}
	}
}

func TestIgnoreBuiltins(t *testing.T) {
	test := &ignoreTestCase{
		tests: []ignoreTestValue{
			{path: "/users/x/project/.git", isDir: true, expected: true},
			{path: "/users/x/project/.git/config", expected: true},
			{path: "/users/x/project/node_modules", isDir: true, expected: true},
			{path: "/users/x/.Trash/old.txt", expected: true},
			{path: "/users/x/Library/Caches/app", expected: true},
			{path: "/users/x/Library/Preferences/app", expected: false},
			{path: "/users/x/project/main.go", expected: false},
			{path: "/users/x/gitter/readme.md", expected: false},
		},
	}
	test.run(t)
}

func TestIgnoreRoots(t *testing.T) {
	test := &ignoreTestCase{
		rules: []string{"/users/x/scratch"},
		tests: []ignoreTestValue{
			{path: "/users/x/scratch", isDir: true, expected: true},
			{path: "/users/x/scratch/deep/file.txt", expected: true},
			{path: "/users/x/scratchpad", expected: false},
			{path: "/users/x/other", expected: false},
		},
	}
	test.run(t)
}

func TestIgnoreSegments(t *testing.T) {
	test := &ignoreTestCase{
		rules: []string{"target", "Dist"},
		tests: []ignoreTestValue{
			{path: "/users/x/project/target", isDir: true, expected: true},
			{path: "/users/x/project/target/debug/bin", expected: true},
			{path: "/users/x/project/dist/app.js", expected: true},
			{path: "/users/x/project/targeted.txt", expected: false},
		},
	}
	test.run(t)
}

func TestIgnoreGlobs(t *testing.T) {
	test := &ignoreTestCase{
		rules: []string{"**/*.tmp", "/users/*/downloads/**"},
		tests: []ignoreTestValue{
			{path: "/users/x/work/file.tmp", expected: true},
			{path: "/users/x/work/file.txt", expected: false},
			{path: "/users/x/downloads/big.iso", expected: true},
			{path: "/users/x/documents/big.iso", expected: false},
		},
	}
	test.run(t)
}

func TestIgnoreInvalidRulesDropped(t *testing.T) {
	// Invalid rules must not disable the set.
	set := NewSet([]string{"", "relative/path", "[bad-glob"}, "", nil)
	if set.ShouldSkip("/users/x/file.txt", false) {
		t.Fatal("valid path should survive invalid rules")
	}
	if !set.ShouldSkip("/users/x/.git", true) {
		t.Fatal("builtins should remain active")
	}
}

func TestSkipsSegment(t *testing.T) {
	set := NewSet([]string{"target"}, "", nil)
	if !set.SkipsSegment(".git") || !set.SkipsSegment("node_modules") {
		t.Fatal("builtin segments should be skipped")
	}
	if !set.SkipsSegment("TARGET") {
		t.Fatal("segment matching should be case-insensitive")
	}
	if set.SkipsSegment("src") {
		t.Fatal("ordinary segments should not be skipped")
	}
}

func TestFilterChildren(t *testing.T) {
	set := NewSet(nil, "", nil)
	kept := set.FilterChildren("/users/x", []string{"src", ".git", "node_modules", "docs"})
	if len(kept) != 2 || kept[0] != "src" || kept[1] != "docs" {
		t.Fatal("filter behavior not as expected:", kept)
	}
}
