package index

import (
	"path/filepath"
	"testing"
)

func TestJoinAndSplitPath(t *testing.T) {
	separator := string(filepath.Separator)
	dir := separator + filepath.Join("users", "x")
	path := JoinPath(dir, "notes.txt")
	if path != dir+separator+"notes.txt" {
		t.Fatal("join behavior not as expected:", path)
	}
	splitDir, splitName := SplitPath(path)
	if splitDir != dir || splitName != "notes.txt" {
		t.Fatal("split behavior not as expected:", splitDir, splitName)
	}
}

func TestJoinPathAtRoot(t *testing.T) {
	separator := string(filepath.Separator)
	path := JoinPath(separator, "tmp")
	if path != separator+"tmp" {
		t.Fatal("root join should not double the separator:", path)
	}
}

type extensionTestCase struct {
	name string
	ext  string
	stem string
}

func (c *extensionTestCase) run(t *testing.T) {
	t.Helper()
	if ext := ExtensionOf(c.name); ext != c.ext {
		t.Errorf("extension not as expected for %q: got %q, want %q", c.name, ext, c.ext)
	}
	if stem := StemOf(c.name); stem != c.stem {
		t.Errorf("stem not as expected for %q: got %q, want %q", c.name, stem, c.stem)
	}
}

func TestExtensions(t *testing.T) {
	cases := []extensionTestCase{
		{name: "notes.txt", ext: "txt", stem: "notes"},
		{name: "archive.TAR", ext: "tar", stem: "archive"},
		{name: "README", ext: "", stem: "README"},
		{name: ".gitignore", ext: "", stem: ".gitignore"},
		{name: "trailing.", ext: "", stem: "trailing"},
		{name: "a.b.c", ext: "c", stem: "a.b"},
	}
	for i := range cases {
		cases[i].run(t)
	}
}

func TestEntryFlags(t *testing.T) {
	file := NewFile("/data", "a.txt", 10, 100)
	if file.IsDir() || !file.SizeValid() || !file.MTimeValid() {
		t.Fatal("file flags not as expected")
	}
	directory := NewDirectory("/data", "sub", 100)
	if !directory.IsDir() || directory.SizeValid() || !directory.MTimeValid() {
		t.Fatal("directory flags not as expected")
	}
	if directory.Ext != "" {
		t.Fatal("directories must not carry an extension")
	}
	bare := NewFileWithoutMetadata("/data", "b.txt")
	if bare.SizeValid() || bare.MTimeValid() {
		t.Fatal("metadata-free file flags not as expected")
	}
}

func TestEntryConversion(t *testing.T) {
	compact := NewFile("/data", "a.txt", 10, 100)
	entry := compact.Entry()
	if entry.Path != compact.Path() || entry.Ext != "txt" {
		t.Fatal("conversion not as expected")
	}
	if entry.Size == nil || *entry.Size != 10 || entry.MTime == nil || *entry.MTime != 100 {
		t.Fatal("optional fields not as expected")
	}
	directory := NewDirectory("/data", "sub", 0)
	converted := directory.Entry()
	if converted.MTime != nil || converted.Size != nil || converted.Ext != "" {
		t.Fatal("directory conversion not as expected")
	}
}

func TestLowerNormalizes(t *testing.T) {
	// A decomposed "é" (e + combining acute) must compare equal to the
	// composed form after lowering.
	composed := "Café"
	decomposed := "Café"
	if Lower(composed) != Lower(decomposed) {
		t.Fatal("decomposed names should normalize to the composed form")
	}
	if Lower("MixedCase") != "mixedcase" {
		t.Fatal("lowering behavior not as expected")
	}
}
