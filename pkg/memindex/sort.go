package memindex

import (
	"path/filepath"
	"strings"

	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/query"
)

// separator is the platform path separator as a string.
const separator = string(filepath.Separator)

// normalizeSeparators rewrites forward slashes in a query hint to the
// platform separator so that hints match stored directory paths.
func normalizeSeparators(value string) string {
	if filepath.Separator == '/' {
		return value
	}
	return strings.ReplaceAll(value, "/", separator)
}

// Relevance ranks for name ordering with a non-empty query. Lower is better.
const (
	rankExactName = 1
	rankExactStem = 2
	rankPrefix    = 3
	rankSubstring = 5
	rankOther     = 9
)

// relevanceRank computes the relevance rank of an entry for a lowercased
// query.
func (x *Index) relevanceRank(idx uint32, queryLower string) int {
	nameLower := x.namesLower[idx]
	if nameLower == queryLower {
		return rankExactName
	}
	if stem := index.StemOf(nameLower); stem != nameLower && stem == queryLower {
		return rankExactStem
	}
	if strings.HasPrefix(nameLower, queryLower) {
		return rankPrefix
	}
	if strings.Contains(nameLower, queryLower) {
		return rankSubstring
	}
	return rankOther
}

// pathDepth counts the separators in a path, serving as the tiebreaker after
// relevance rank.
func pathDepth(path string) int {
	depth := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' || path[i] == '\\' {
			depth++
		}
	}
	return depth
}

// comparator returns the ordering comparator for a filtered candidate set. A
// negative result orders a before b.
func (x *Index) comparator(q *query.Query, sortBy index.SortBy, sortDir index.SortDirection) func(a, b uint32) int {
	// Metadata orderings ignore relevance entirely.
	if sortBy == index.SortByMTime || sortBy == index.SortBySize {
		return x.metadataComparator(sortBy, sortDir)
	}

	// Name ordering without a query is a plain case-insensitive comparison.
	if q.Raw == "" {
		return x.nameComparator(sortDir)
	}

	// Name ordering with a query ranks by relevance first, then by path depth
	// for strong matches, then by case-insensitive name.
	queryLower := strings.ToLower(q.Raw)
	nameCompare := x.nameComparator(sortDir)
	return func(a, b uint32) int {
		rankA := x.relevanceRank(a, queryLower)
		rankB := x.relevanceRank(b, queryLower)
		if rankA != rankB {
			return rankA - rankB
		}
		if rankA <= rankPrefix {
			depthA := pathDepth(x.entries[a].Dir)
			depthB := pathDepth(x.entries[b].Dir)
			if depthA != depthB {
				return depthA - depthB
			}
		}
		return nameCompare(a, b)
	}
}

// nameComparator returns a case-insensitive name comparator honoring the sort
// direction.
func (x *Index) nameComparator(sortDir index.SortDirection) func(a, b uint32) int {
	return func(a, b uint32) int {
		nameA := x.namesLower[a]
		nameB := x.namesLower[b]
		if sortDir == index.SortDescending {
			nameA, nameB = nameB, nameA
		}
		return strings.Compare(nameA, nameB)
	}
}

// metadataComparator returns a comparator over mtime or size. Entries with
// unknown values always order last, regardless of direction.
func (x *Index) metadataComparator(sortBy index.SortBy, sortDir index.SortDirection) func(a, b uint32) int {
	bySize := sortBy == index.SortBySize
	descending := sortDir == index.SortDescending
	return func(a, b uint32) int {
		entryA := &x.entries[a]
		entryB := &x.entries[b]
		var valueA, valueB int64
		var validA, validB bool
		if bySize {
			valueA, validA = entryA.Size, entryA.SizeValid()
			valueB, validB = entryB.Size, entryB.SizeValid()
		} else {
			valueA, validA = entryA.MTime, entryA.MTimeValid()
			valueB, validB = entryB.MTime, entryB.MTimeValid()
		}
		if !validA && !validB {
			return 0
		} else if !validA {
			return 1
		} else if !validB {
			return -1
		}
		if descending {
			valueA, valueB = valueB, valueA
		}
		if valueA < valueB {
			return -1
		} else if valueA > valueB {
			return 1
		}
		return 0
	}
}

// partialSort performs an nth-element selection of the k smallest candidates
// (under the comparator) followed by a full sort of that prefix, returning
// the truncated slice. It is used when the candidate set is much larger than
// the requested page.
func partialSort(indices []uint32, k int, comparator func(a, b uint32) int) []uint32 {
	if k <= 0 || len(indices) == 0 {
		return indices[:0]
	}
	if k > len(indices) {
		k = len(indices)
	}

	// Partition so that the k smallest elements occupy the prefix.
	selectNth(indices, k-1, comparator)
	indices = indices[:k]

	// Fully order the prefix.
	quickSort(indices, comparator)

	// Done.
	return indices
}

// selectNth partially orders indices so that the element at position n is the
// one that would appear there under a full sort, with smaller elements before
// it. It is an iterative quickselect with middle-element pivoting.
func selectNth(indices []uint32, n int, comparator func(a, b uint32) int) {
	lo, hi := 0, len(indices)-1
	for lo < hi {
		pivot := indices[(lo+hi)/2]
		i, j := lo, hi
		for i <= j {
			for comparator(indices[i], pivot) < 0 {
				i++
			}
			for comparator(indices[j], pivot) > 0 {
				j--
			}
			if i <= j {
				indices[i], indices[j] = indices[j], indices[i]
				i++
				j--
			}
		}
		if n <= j {
			hi = j
		} else if n >= i {
			lo = i
		} else {
			return
		}
	}
}

// quickSort is a recursive quicksort with middle-element pivoting and an
// insertion sort base case.
func quickSort(indices []uint32, comparator func(a, b uint32) int) {
	if len(indices) < 12 {
		for i := 1; i < len(indices); i++ {
			for j := i; j > 0 && comparator(indices[j], indices[j-1]) < 0; j-- {
				indices[j], indices[j-1] = indices[j-1], indices[j]
			}
		}
		return
	}
	pivot := indices[len(indices)/2]
	i, j := 0, len(indices)-1
	for i <= j {
		for comparator(indices[i], pivot) < 0 {
			i++
		}
		for comparator(indices[j], pivot) > 0 {
			j--
		}
		if i <= j {
			indices[i], indices[j] = indices[j], indices[i]
			i++
			j--
		}
	}
	if j > 0 {
		quickSort(indices[:j+1], comparator)
	}
	if i < len(indices) {
		quickSort(indices[i:], comparator)
	}
}
