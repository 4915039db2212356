package memindex

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/query"
)

// buildTestIndex constructs an index over file entries rooted in a fake home
// directory.
func buildTestIndex(names ...string) *Index {
	dir := filepath.Join(string(filepath.Separator)+"users", "x")
	entries := make([]index.CompactEntry, 0, len(names))
	for i, name := range names {
		entries = append(entries, index.NewFile(dir, name, int64(100*(i+1)), int64(1000*(i+1))))
	}
	return Build(entries, nil)
}

// names extracts result names for comparison.
func names(results []*index.Entry) []string {
	extracted := make([]string, 0, len(results))
	for _, entry := range results {
		extracted = append(extracted, entry.Name)
	}
	return extracted
}

// equalNames compares a result page against expected names.
func equalNames(t *testing.T, results []*index.Entry, expected ...string) {
	t.Helper()
	actual := names(results)
	if len(actual) != len(expected) {
		t.Fatalf("result count not as expected: got %v, want %v", actual, expected)
	}
	for i := range expected {
		if actual[i] != expected[i] {
			t.Fatalf("result order not as expected: got %v, want %v", actual, expected)
		}
	}
}

func TestEmptyQueryNameOrder(t *testing.T) {
	idx := buildTestIndex("beta.txt", "Alpha.txt", "gamma.txt")
	results := idx.Search(query.Parse(""), 10, 0, index.SortByName, index.SortAscending)
	equalNames(t, results, "Alpha.txt", "beta.txt", "gamma.txt")
}

func TestEmptyQueryDescending(t *testing.T) {
	idx := buildTestIndex("beta.txt", "Alpha.txt", "gamma.txt")
	results := idx.Search(query.Parse(""), 10, 0, index.SortByName, index.SortDescending)
	equalNames(t, results, "gamma.txt", "beta.txt", "Alpha.txt")
}

func TestEmptyQueryPagination(t *testing.T) {
	idx := buildTestIndex("a", "b", "c", "d", "e")
	results := idx.Search(query.Parse(""), 2, 2, index.SortByName, index.SortAscending)
	equalNames(t, results, "c", "d")
	results = idx.Search(query.Parse(""), 2, 4, index.SortByName, index.SortAscending)
	equalNames(t, results, "e")
	results = idx.Search(query.Parse(""), 2, 5, index.SortByName, index.SortAscending)
	equalNames(t, results)
}

func TestNameSearchRelevanceOrder(t *testing.T) {
	// The canonical relevance scenario: exact-stem and prefix matches
	// precede substring matches, and non-matches never appear.
	idx := buildTestIndex("README.md", "readme.txt", "my_readme_notes", "unrelated.md")
	results := idx.Search(query.Parse("readme"), 10, 0, index.SortByName, index.SortAscending)
	equalNames(t, results, "README.md", "readme.txt", "my_readme_notes")
}

func TestNameSearchExactBeforePrefix(t *testing.T) {
	idx := buildTestIndex("make", "makefile", "remake")
	results := idx.Search(query.Parse("make"), 10, 0, index.SortByName, index.SortAscending)
	equalNames(t, results, "make", "makefile", "remake")
}

func TestExtensionSearchIsPureSlice(t *testing.T) {
	idx := buildTestIndex("b.md", "a.md", "c.txt", "d.MD")
	results := idx.Search(query.Parse("*.md"), 10, 0, index.SortByName, index.SortAscending)
	equalNames(t, results, "a.md", "b.md", "d.MD")
}

func TestExtensionSearchPagination(t *testing.T) {
	idx := buildTestIndex("a.md", "b.md", "c.md", "d.md")
	results := idx.Search(query.Parse("*.md"), 2, 1, index.SortByName, index.SortAscending)
	equalNames(t, results, "b.md", "c.md")
}

func TestGlobSearch(t *testing.T) {
	idx := buildTestIndex("test1.md", "test.md", "toast2.md", "other.txt")
	results := idx.Search(query.Parse("t*t?.md"), 10, 0, index.SortByName, index.SortAscending)
	equalNames(t, results, "test1.md", "toast2.md")
}

func TestGlobOnlyWildcardsMatchesEverything(t *testing.T) {
	idx := buildTestIndex("a.md", "b.txt")
	results := idx.Search(query.Parse("*?"), 10, 0, index.SortByName, index.SortAscending)
	if len(results) != 2 {
		t.Fatal("wildcard-only pattern should match every entry, got", len(results))
	}
}

func TestPathSearch(t *testing.T) {
	separator := string(filepath.Separator)
	base := separator + filepath.Join("users", "x")
	entries := []index.CompactEntry{
		index.NewFile(filepath.Join(base, "desktop"), "a.png", 1, 1),
		index.NewFile(filepath.Join(base, "desktop", "sub"), "b.png", 2, 2),
		index.NewFile(filepath.Join(base, "desktop_notes"), "c.png", 3, 3),
	}
	idx := Build(entries, nil)
	results := idx.Search(query.Parse("desktop/*.png"), 10, 0, index.SortByName, index.SortAscending)
	equalNames(t, results, "a.png", "b.png")
}

func TestPathSearchEmptyHintActsAsNameOnly(t *testing.T) {
	idx := buildTestIndex("notes.txt", "other.md")
	results := idx.Search(query.Parse("/notes"), 10, 0, index.SortByName, index.SortAscending)
	equalNames(t, results, "notes.txt")
}

func TestMetadataSortNoneLast(t *testing.T) {
	dir := string(filepath.Separator) + "data"
	entries := []index.CompactEntry{
		index.NewFile(dir, "sized.txt", 10, 100),
		index.NewFileWithoutMetadata(dir, "unsized.txt"),
		index.NewFile(dir, "bigger.txt", 20, 200),
	}
	idx := Build(entries, nil)

	ascending := idx.Search(query.Parse(""), 10, 0, index.SortBySize, index.SortAscending)
	equalNames(t, ascending, "sized.txt", "bigger.txt", "unsized.txt")

	// Unknown values order last regardless of direction.
	descending := idx.Search(query.Parse(""), 10, 0, index.SortBySize, index.SortDescending)
	equalNames(t, descending, "bigger.txt", "sized.txt", "unsized.txt")
}

func TestRandomEntriesEmptyQueryOrder(t *testing.T) {
	// Property: for random entry vectors, an empty query returns all entries
	// in lowercased-name order.
	generator := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		count := 1 + generator.Intn(200)
		entryNames := make([]string, count)
		for i := range entryNames {
			length := 1 + generator.Intn(12)
			var builder strings.Builder
			for j := 0; j < length; j++ {
				builder.WriteByte(byte('a' + generator.Intn(26)))
			}
			entryNames[i] = builder.String()
		}
		idx := buildTestIndex(entryNames...)
		results := idx.Search(query.Parse(""), count, 0, index.SortByName, index.SortAscending)
		if len(results) != count {
			t.Fatal("empty query should return every entry")
		}
		for i := 1; i < len(results); i++ {
			if strings.ToLower(results[i-1].Name) > strings.ToLower(results[i].Name) {
				t.Fatal("results not in lowercased-name order")
			}
		}
	}
}

func TestIncrementString(t *testing.T) {
	if next, ok := IncrementString("abc"); !ok || next != "abd" {
		t.Error("increment not as expected:", next)
	}
	if next, ok := IncrementString("a"); !ok || next != "b" {
		t.Error("increment not as expected:", next)
	}
	if _, ok := IncrementString(""); ok {
		t.Error("empty string should not increment")
	}
}

func TestHolderPublishAndFree(t *testing.T) {
	holder := NewHolder()
	if holder.Get() != nil {
		t.Fatal("empty holder should return nil")
	}
	idx := buildTestIndex("a.txt")
	holder.Publish(idx)
	if holder.Get() != idx {
		t.Fatal("holder should return the published index")
	}
	holder.Free()
	if holder.Get() != nil {
		t.Fatal("freed holder should return nil")
	}
}
