// Package memindex provides the transient in-memory search index used from
// indexer completion until the persistent catalog's secondary indices exist.
// It is built once from a vector of compact entries and answers every query
// mode within a bounded time budget.
package memindex

import (
	"sort"
	"strings"
	"time"

	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/logging"
	"github.com/charlesoon/everything/pkg/query"
)

const (
	// scanBudget is the hard time budget for linear scan phases (contains
	// scans, glob full scans, and directory map scans).
	scanBudget = 30 * time.Millisecond
	// scanBudgetCheckMask controls how often scan loops check their time
	// budget: whenever index&mask == 0, i.e. every 16384 entries.
	scanBudgetCheckMask = 0x3FFF
	// pathCollectFactor bounds how many candidate indices a path search will
	// accumulate before filtering, as a multiple of the requested limit.
	pathCollectFactor = 30
)

// Index is the in-memory search structure. It is immutable once built and
// therefore safe for concurrent readers.
type Index struct {
	// entries is the backing entry vector.
	entries []index.CompactEntry
	// namesLower holds the lowercased name of each entry, kept alongside the
	// entries to avoid per-query allocation.
	namesLower []string
	// sortedIdx is a permutation of entry indices ordered by lowercased name,
	// enabling binary-search prefix lookups.
	sortedIdx []uint32
	// extMap maps a lowercased extension to the indices of entries carrying
	// it, ordered by lowercased name.
	extMap map[string][]uint32
	// dirMap maps a lowercased parent directory to the indices of its
	// entries.
	dirMap map[string][]uint32
}

// Build constructs an index from an entry vector. The vector is retained by
// the index and must not be mutated afterward.
func Build(entries []index.CompactEntry, logger *logging.Logger) *Index {
	start := time.Now()

	// Populate the flat structures and the extension and directory maps.
	namesLower := make([]string, len(entries))
	sortedIdx := make([]uint32, len(entries))
	extMap := make(map[string][]uint32)
	dirMap := make(map[string][]uint32)
	for i := range entries {
		idx := uint32(i)
		namesLower[i] = index.Lower(entries[i].Name)
		sortedIdx[i] = idx
		if ext := entries[i].Ext; ext != "" {
			extMap[ext] = append(extMap[ext], idx)
		}
		dirLower := index.Lower(entries[i].Dir)
		dirMap[dirLower] = append(dirMap[dirLower], idx)
	}

	// Order the permutation by lowercased name.
	sort.Slice(sortedIdx, func(a, b int) bool {
		return namesLower[sortedIdx[a]] < namesLower[sortedIdx[b]]
	})

	// Order each extension bucket by lowercased name so that extension
	// queries with the default sort are pure slices.
	for _, indices := range extMap {
		sort.Slice(indices, func(a, b int) bool {
			return namesLower[indices[a]] < namesLower[indices[b]]
		})
	}

	// Create the index.
	result := &Index{
		entries:    entries,
		namesLower: namesLower,
		sortedIdx:  sortedIdx,
		extMap:     extMap,
		dirMap:     dirMap,
	}

	logger.Debugf("built index: entries=%d ext_keys=%d dir_keys=%d in %v",
		len(entries), len(extMap), len(dirMap), time.Since(start),
	)

	// Done.
	return result
}

// Len returns the number of entries in the index.
func (x *Index) Len() int {
	return len(x.entries)
}

// Entries exposes the backing entry vector for bulk-loading into the catalog.
// Callers must not mutate it.
func (x *Index) Entries() []index.CompactEntry {
	return x.entries
}

// Search answers a parsed query, returning at most limit entries starting at
// offset under the requested ordering. Scan phases that exceed their time
// budget return best-effort partial results.
func (x *Index) Search(q *query.Query, limit, offset int, sortBy index.SortBy, sortDir index.SortDirection) []*index.Entry {
	if limit <= 0 {
		return nil
	}

	// Empty queries paginate the name-ordered permutation directly, or sort a
	// fresh index vector for metadata orderings.
	if q.Kind == query.KindEmpty {
		return x.searchEmpty(limit, offset, sortBy, sortDir)
	}

	// Extension queries paginate the pre-sorted extension bucket.
	if q.Kind == query.KindExtension {
		return x.searchExtension(q.Ext, limit, offset, sortBy, sortDir)
	}

	// The remaining modes filter to a candidate set first.
	var indices []uint32
	switch q.Kind {
	case query.KindName:
		indices = x.filterByName(strings.ToLower(q.Raw), limit)
	case query.KindGlob:
		indices = x.filterByGlob(q.NameLike, limit)
	case query.KindPath:
		indices = x.filterByPath(q.DirHint, q.NameLike, limit)
	}

	// Order the candidates. When the candidate set is much larger than the
	// requested page, a partial sort bounds the work.
	needed := offset + limit
	if needed > len(indices) {
		needed = len(indices)
	}
	comparator := x.comparator(q, sortBy, sortDir)
	if len(indices) > needed*3 {
		indices = partialSort(indices, needed, comparator)
	} else {
		sort.SliceStable(indices, func(a, b int) bool {
			return comparator(indices[a], indices[b]) < 0
		})
	}

	// Extract the requested page.
	return x.page(indices, limit, offset)
}

// page converts a slice of entry indices into host-facing entries, applying
// limit and offset.
func (x *Index) page(indices []uint32, limit, offset int) []*index.Entry {
	if offset >= len(indices) {
		return nil
	}
	end := offset + limit
	if end > len(indices) {
		end = len(indices)
	}
	results := make([]*index.Entry, 0, end-offset)
	for _, idx := range indices[offset:end] {
		results = append(results, x.entries[idx].Entry())
	}
	return results
}

// searchEmpty implements the empty query mode.
func (x *Index) searchEmpty(limit, offset int, sortBy index.SortBy, sortDir index.SortDirection) []*index.Entry {
	// Metadata orderings sort a fresh index vector.
	if sortBy == index.SortByMTime || sortBy == index.SortBySize {
		indices := make([]uint32, len(x.entries))
		for i := range indices {
			indices[i] = uint32(i)
		}
		comparator := x.metadataComparator(sortBy, sortDir)
		needed := offset + limit
		if needed > len(indices) {
			needed = len(indices)
		}
		if len(indices) > needed*3 {
			indices = partialSort(indices, needed, comparator)
		} else {
			sort.SliceStable(indices, func(a, b int) bool {
				return comparator(indices[a], indices[b]) < 0
			})
		}
		return x.page(indices, limit, offset)
	}

	// Name orderings paginate the sorted permutation directly, walking it in
	// reverse for descending order.
	if sortDir == index.SortDescending {
		return x.pageReversed(x.sortedIdx, limit, offset)
	}
	return x.page(x.sortedIdx, limit, offset)
}

// pageReversed extracts a page from a pre-sorted index slice iterated in
// reverse, avoiding a copy for descending name orderings.
func (x *Index) pageReversed(indices []uint32, limit, offset int) []*index.Entry {
	if offset >= len(indices) {
		return nil
	}
	count := limit
	if offset+count > len(indices) {
		count = len(indices) - offset
	}
	results := make([]*index.Entry, 0, count)
	for i := 0; i < count; i++ {
		idx := indices[len(indices)-1-offset-i]
		results = append(results, x.entries[idx].Entry())
	}
	return results
}

// searchExtension implements the extension query mode.
func (x *Index) searchExtension(ext string, limit, offset int, sortBy index.SortBy, sortDir index.SortDirection) []*index.Entry {
	bucket, ok := x.extMap[strings.ToLower(ext)]
	if !ok {
		return nil
	}

	// Metadata orderings run a partial sort over a copy of the bucket.
	if sortBy == index.SortByMTime || sortBy == index.SortBySize {
		indices := make([]uint32, len(bucket))
		copy(indices, bucket)
		comparator := x.metadataComparator(sortBy, sortDir)
		needed := offset + limit
		if needed > len(indices) {
			needed = len(indices)
		}
		if len(indices) > needed {
			indices = partialSort(indices, needed, comparator)
		} else {
			sort.SliceStable(indices, func(a, b int) bool {
				return comparator(indices[a], indices[b]) < 0
			})
		}
		return x.page(indices, limit, offset)
	}

	// The bucket is pre-sorted by name, so name orderings are pure slices.
	if sortDir == index.SortDescending {
		return x.pageReversed(bucket, limit, offset)
	}
	return x.page(bucket, limit, offset)
}

// filterByName implements the two-phase name search: exact and prefix ranges
// via binary search, then a budgeted contains scan for the remainder.
func (x *Index) filterByName(queryLower string, limit int) []uint32 {
	// Phase 1: locate the exact-match range on the sorted permutation.
	lo := sort.Search(len(x.sortedIdx), func(i int) bool {
		return x.namesLower[x.sortedIdx[i]] >= queryLower
	})
	var results []uint32
	i := lo
	for i < len(x.sortedIdx) && x.namesLower[x.sortedIdx[i]] == queryLower {
		results = append(results, x.sortedIdx[i])
		i++
	}
	if len(results) >= limit {
		return results[:limit]
	}

	// Extend with the prefix range [query, query⁺), whose upper bound comes
	// from incrementing the query string.
	prefixHi := len(x.sortedIdx)
	if upper, ok := IncrementString(queryLower); ok {
		prefixHi = sort.Search(len(x.sortedIdx), func(i int) bool {
			return x.namesLower[x.sortedIdx[i]] >= upper
		})
	}
	for j := i; j < prefixHi; j++ {
		results = append(results, x.sortedIdx[j])
		if len(results) >= limit {
			return results
		}
	}

	// Phase 2: budgeted linear scan for substring matches not already found.
	seen := make(map[uint32]bool, len(results))
	for _, idx := range results {
		seen[idx] = true
	}
	scanStart := time.Now()
	for idx, nameLower := range x.namesLower {
		if seen[uint32(idx)] {
			continue
		}
		if strings.Contains(nameLower, queryLower) {
			results = append(results, uint32(idx))
			if len(results) >= limit {
				break
			}
		}
		if idx&scanBudgetCheckMask == 0 && time.Since(scanStart) > scanBudget {
			break
		}
	}

	// Done.
	return results
}

// filterByGlob implements the glob search. Patterns with a literal prefix are
// evaluated only against the binary-searched prefix range; others fall back
// to a budgeted full scan.
func (x *Index) filterByGlob(nameLike string, limit int) []uint32 {
	pattern := query.CompileLike(nameLike)

	// Narrow to the prefix range when possible.
	if prefix, ok := pattern.LiteralPrefix(); ok && prefix != "" {
		lo := sort.Search(len(x.sortedIdx), func(i int) bool {
			return x.namesLower[x.sortedIdx[i]] >= prefix
		})
		hi := len(x.sortedIdx)
		if upper, incremented := IncrementString(prefix); incremented {
			hi = sort.Search(len(x.sortedIdx), func(i int) bool {
				return x.namesLower[x.sortedIdx[i]] >= upper
			})
		}
		var results []uint32
		for j := lo; j < hi; j++ {
			idx := x.sortedIdx[j]
			if pattern.MatchPreLowered(x.namesLower[idx]) {
				results = append(results, idx)
				if len(results) >= limit {
					break
				}
			}
		}
		return results
	}

	// Fall back to a budgeted full scan.
	scanStart := time.Now()
	var results []uint32
	for idx, nameLower := range x.namesLower {
		if pattern.MatchPreLowered(nameLower) {
			results = append(results, uint32(idx))
		}
		if idx&scanBudgetCheckMask == 0 && idx > 0 && time.Since(scanStart) > scanBudget {
			break
		}
	}
	return results
}

// filterByPath implements the path search: accept directories whose lowercased
// form ends with the separator-prefixed hint or contains it as an infix, then
// filter candidates by name pattern.
func (x *Index) filterByPath(dirHint, nameLike string, limit int) []uint32 {
	hint := strings.ToLower(normalizeSeparators(dirHint))
	suffix := separator + hint
	infix := separator + hint + separator

	// An empty hint constrains nothing, so every directory matches and the
	// query degrades to a name-only filter.
	matchAll := hint == ""

	// Accumulate candidate indices from matching directories, bounded by a
	// multiple of the limit and the scan budget.
	scanStart := time.Now()
	collectCap := limit * pathCollectFactor
	var candidates []uint32
	for dirLower, indices := range x.dirMap {
		if matchAll || strings.HasSuffix(dirLower, suffix) || strings.Contains(dirLower, infix) {
			candidates = append(candidates, indices...)
			if len(candidates) >= collectCap {
				break
			}
		}
		if time.Since(scanStart) > scanBudget {
			break
		}
	}

	// A trivial name pattern keeps every candidate.
	if nameLike == "%" {
		return candidates
	}

	// Filter candidates by the name pattern.
	pattern := query.CompileLike(nameLike)
	filtered := candidates[:0]
	for _, idx := range candidates {
		if pattern.MatchPreLowered(x.namesLower[idx]) {
			filtered = append(filtered, idx)
		}
	}
	return filtered
}

// IncrementString computes the smallest string greater than every string with
// the given prefix, for use as an exclusive upper bound in prefix range
// scans. It returns false if no such string exists (every character is
// already maximal).
func IncrementString(s string) (string, bool) {
	runes := []rune(s)
	for i := len(runes) - 1; i >= 0; i-- {
		if next := runes[i] + 1; utf8Valid(next) {
			runes[i] = next
			return string(runes[:i+1]), true
		}
	}
	return "", false
}

// utf8Valid indicates whether or not a rune value is encodable, skipping the
// surrogate range.
func utf8Valid(r rune) bool {
	return r <= '\U0010FFFF' && (r < 0xD800 || r > 0xDFFF)
}
