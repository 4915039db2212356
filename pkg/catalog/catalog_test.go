package catalog

import (
	"path/filepath"
	"testing"

	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/query"
)

// openTestStore opens a catalog in a temporary directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"), nil)
	if err != nil {
		t.Fatal("unable to open catalog:", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// testEntries builds a small entry vector.
func testEntries() []index.CompactEntry {
	dir := filepath.Join(string(filepath.Separator)+"users", "x")
	return []index.CompactEntry{
		index.NewFile(dir, "README.md", 100, 1000),
		index.NewFile(dir, "readme.txt", 200, 2000),
		index.NewFile(dir, "my_readme_notes", 300, 3000),
		index.NewFile(dir, "unrelated.md", 400, 4000),
		index.NewDirectory(dir, "projects", 5000),
	}
}

// loadEntries bulk-loads entries under a fresh run.
func loadEntries(t *testing.T, store *Store, entries []index.CompactEntry) int64 {
	t.Helper()
	runID, err := store.NextRunID()
	if err != nil {
		t.Fatal("unable to allocate run:", err)
	}
	if err := store.BeginBulkLoad(); err != nil {
		t.Fatal("unable to begin bulk load:", err)
	}
	if err := store.BulkInsert(entries, runID, nil); err != nil {
		t.Fatal("unable to bulk insert:", err)
	}
	if err := store.FinishBulkLoad(runID, nil); err != nil {
		t.Fatal("unable to finish bulk load:", err)
	}
	return runID
}

func TestBulkLoadAndCount(t *testing.T) {
	store := openTestStore(t)
	loadEntries(t, store, testEntries())
	count, err := store.Count()
	if err != nil {
		t.Fatal("unable to count:", err)
	}
	if count != 5 {
		t.Fatal("count not as expected:", count)
	}
	if complete, err := store.IndexComplete(); err != nil || !complete {
		t.Fatal("index should be complete")
	}
}

func TestStaleCleanup(t *testing.T) {
	// Bulk-load followed by stale cleanup must leave the catalog identical
	// to a fresh load of the same entries.
	store := openTestStore(t)
	loadEntries(t, store, testEntries())

	// Reload a subset under a new run; the rest must be swept.
	subset := testEntries()[:2]
	loadEntries(t, store, subset)
	count, err := store.Count()
	if err != nil {
		t.Fatal("unable to count:", err)
	}
	if count != 2 {
		t.Fatal("stale rows should have been swept, count:", count)
	}
}

func TestUpsertAndDelete(t *testing.T) {
	store := openTestStore(t)
	loadEntries(t, store, testEntries())

	// Create then delete the same path; no row may remain.
	dir := filepath.Join(string(filepath.Separator)+"users", "x")
	entry := index.NewFile(dir, "ephemeral.txt", 1, 1)
	if err := store.Upsert([]index.CompactEntry{entry}); err != nil {
		t.Fatal("unable to upsert:", err)
	}
	if exists, _ := store.PathExists(entry.Path()); !exists {
		t.Fatal("upserted path should exist")
	}
	if err := store.DeletePaths([]string{entry.Path()}); err != nil {
		t.Fatal("unable to delete:", err)
	}
	if exists, _ := store.PathExists(entry.Path()); exists {
		t.Fatal("deleted path should not exist")
	}
}

func TestDeleteCascadesBeneathDirectories(t *testing.T) {
	store := openTestStore(t)
	dir := filepath.Join(string(filepath.Separator)+"users", "x")
	sub := index.JoinPath(dir, "projects")
	entries := []index.CompactEntry{
		index.NewDirectory(dir, "projects", 1),
		index.NewFile(sub, "main.go", 1, 1),
		index.NewFile(sub, "go.mod", 1, 1),
		index.NewFile(dir, "keep.txt", 1, 1),
	}
	loadEntries(t, store, entries)

	if err := store.DeletePaths([]string{sub}); err != nil {
		t.Fatal("unable to delete:", err)
	}
	count, _ := store.Count()
	if count != 1 {
		t.Fatal("directory deletion should cascade, count:", count)
	}
	if exists, _ := store.PathExists(index.JoinPath(dir, "keep.txt")); !exists {
		t.Fatal("sibling should survive the cascade")
	}
}

func TestMetaRoundTrip(t *testing.T) {
	store := openTestStore(t)
	if err := store.SetMetaInt(MetaLastUSN, 12345); err != nil {
		t.Fatal("unable to set meta:", err)
	}
	if value, err := store.GetMetaInt(MetaLastUSN, 0); err != nil || value != 12345 {
		t.Fatal("meta round trip not as expected:", value)
	}
	if value, err := store.GetMetaInt("absent", -7); err != nil || value != -7 {
		t.Fatal("absent meta should yield the fallback:", value)
	}
	if identity, err := store.GetMeta(MetaInstanceID); err != nil || identity == "" {
		t.Fatal("instance identity should exist")
	}
}

func TestWipeRegeneratesIdentity(t *testing.T) {
	store := openTestStore(t)
	loadEntries(t, store, testEntries())
	before, _ := store.GetMeta(MetaInstanceID)
	if err := store.Wipe(); err != nil {
		t.Fatal("unable to wipe:", err)
	}
	if count, _ := store.Count(); count != 0 {
		t.Fatal("wipe should empty the catalog")
	}
	after, _ := store.GetMeta(MetaInstanceID)
	if after == "" || after == before {
		t.Fatal("wipe should regenerate the instance identity")
	}
}

type catalogSearchTestCase struct {
	input    string
	expected []string
}

func (c *catalogSearchTestCase) run(t *testing.T, store *Store) {
	t.Helper()
	results, err := store.Search(query.Parse(c.input), 100, 0, index.SortByName, index.SortAscending)
	if err != nil {
		t.Fatalf("search failed for %q: %v", c.input, err)
	}
	if len(results) != len(c.expected) {
		t.Fatalf("result count not as expected for %q: got %d, want %d",
			c.input, len(results), len(c.expected))
	}
	for i := range c.expected {
		if results[i].Name != c.expected[i] {
			t.Fatalf("result order not as expected for %q: got %s, want %s",
				c.input, results[i].Name, c.expected[i])
		}
	}
}

func TestCatalogSearchModes(t *testing.T) {
	store := openTestStore(t)
	loadEntries(t, store, testEntries())

	cases := []catalogSearchTestCase{
		{input: "", expected: []string{"my_readme_notes", "projects", "README.md", "readme.txt", "unrelated.md"}},
		{input: "*.md", expected: []string{"README.md", "unrelated.md"}},
		// The two-phase name plan returns the prefix page when it's
		// non-empty; substring-only matches surface via the contains scan
		// only when the prefix phase finds nothing.
		{input: "readme", expected: []string{"README.md", "readme.txt"}},
		{input: "_readme_", expected: []string{"my_readme_notes"}},
		{input: "missingthing", expected: nil},
		{input: "x/*.md", expected: []string{"README.md", "unrelated.md"}},
	}
	for i := range cases {
		cases[i].run(t, store)
	}
}

func TestSearchCacheInvalidation(t *testing.T) {
	store := openTestStore(t)
	loadEntries(t, store, testEntries())

	// Prime the cache.
	parsed := query.Parse("readme")
	first, err := store.Search(parsed, 100, 0, index.SortByName, index.SortAscending)
	if err != nil {
		t.Fatal("search failed:", err)
	}

	// Mutate the catalog; the cached page must not survive.
	dir := filepath.Join(string(filepath.Separator)+"users", "x")
	if err := store.Upsert([]index.CompactEntry{index.NewFile(dir, "readme.rst", 1, 1)}); err != nil {
		t.Fatal("unable to upsert:", err)
	}
	second, err := store.Search(parsed, 100, 0, index.SortByName, index.SortAscending)
	if err != nil {
		t.Fatal("search failed:", err)
	}
	if len(second) != len(first)+1 {
		t.Fatal("mutation should invalidate cached results:", len(first), len(second))
	}
}
