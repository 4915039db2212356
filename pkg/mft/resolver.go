// Package mft implements the Windows fast indexing path: raw volume I/O,
// USN/MFT record parsing, FRN-based path resolution, and the two-pass MFT
// indexer. The path resolver and record codec are portable data structures;
// only the volume I/O itself is Windows-specific.
package mft

import (
	"strings"
)

const (
	// RootFRN is the File Reference Number of an NTFS volume's root
	// directory. Parent chains terminate here.
	RootFRN = 5
	// frnMask extracts the lower 48 bits of an FRN, which identify the MFT
	// record uniquely; the upper 16 bits are a reuse sequence number.
	frnMask = (1 << 48) - 1
)

// frnRecord is a single directory edge: the directory's parent and name.
type frnRecord struct {
	// parent is the parent directory's masked FRN.
	parent uint64
	// name is the directory's base name.
	name string
}

// PathResolver reconstructs directory paths from FRN parent edges gathered
// during an MFT enumeration. Files are not stored; they resolve through
// their parent directory's cached path plus their own name. The resolver is
// not safe for concurrent mutation; after the prune pass it degrades into a
// read-only path cache that is.
type PathResolver struct {
	// drivePrefix is the volume prefix (for example "C:") prepended to
	// resolved paths.
	drivePrefix string
	// records maps a masked FRN to its parent edge.
	records map[uint64]frnRecord
	// children maps a masked FRN to its child directory FRNs. It exists only
	// for the subtree computation and is dropped first.
	children map[uint64][]uint64
	// cache maps a masked FRN to its resolved absolute path.
	cache map[uint64]string
}

// NewPathResolver creates a resolver for the specified drive prefix.
func NewPathResolver(drivePrefix string) *PathResolver {
	return NewPathResolverWithCapacity(drivePrefix, 0)
}

// NewPathResolverWithCapacity creates a resolver pre-sized for an expected
// number of directories.
func NewPathResolverWithCapacity(drivePrefix string, capacity int) *PathResolver {
	return &PathResolver{
		drivePrefix: drivePrefix,
		records:     make(map[uint64]frnRecord, capacity),
		children:    make(map[uint64][]uint64, capacity),
		cache:       make(map[uint64]string),
	}
}

// AddRecord registers a directory edge.
func (r *PathResolver) AddRecord(frn, parentFRN uint64, name string) {
	frn &= frnMask
	parentFRN &= frnMask
	r.records[frn] = frnRecord{parent: parentFRN, name: name}
	r.children[parentFRN] = append(r.children[parentFRN], frn)
}

// Len returns the number of registered directory edges.
func (r *PathResolver) Len() int {
	return len(r.records)
}

// Resolve computes the absolute path of a directory FRN by walking parent
// edges to the volume root, caching every intermediate result. It returns
// false for broken chains and for cycles.
func (r *PathResolver) Resolve(frn uint64) (string, bool) {
	frn &= frnMask

	// The root resolves to the drive prefix.
	if frn == RootFRN {
		return r.drivePrefix + `\`, true
	}

	// Check the cache.
	if path, ok := r.cache[frn]; ok {
		return path, true
	}

	// Walk parent edges, recording the visited chain both for cycle
	// detection and for cache population on the way back down.
	var chain []uint64
	visited := make(map[uint64]bool)
	current := frn
	for current != RootFRN {
		// A revisited FRN means the parent chain cycles; the record is
		// unresolvable.
		if visited[current] {
			return "", false
		}
		visited[current] = true

		// A cached ancestor terminates the walk early.
		if _, ok := r.cache[current]; ok {
			break
		}

		// A missing record means the chain is broken.
		record, ok := r.records[current]
		if !ok {
			return "", false
		}
		chain = append(chain, current)
		current = record.parent
	}

	// Compute the prefix at which the walk terminated.
	prefix := r.drivePrefix
	if current != RootFRN {
		prefix = r.cache[current]
	}

	// Unwind the chain, building and caching each path.
	for i := len(chain) - 1; i >= 0; i-- {
		prefix = prefix + `\` + r.records[chain[i]].name
		r.cache[chain[i]] = prefix
	}

	// Done.
	return r.cache[frn], true
}

// FindFRNByPath locates the FRN of an absolute directory path by matching
// path segments through the children map, case-insensitively. It returns
// false if any segment is missing.
func (r *PathResolver) FindFRNByPath(path string) (uint64, bool) {
	// Strip the drive prefix.
	trimmed := path
	if strings.HasPrefix(strings.ToLower(trimmed), strings.ToLower(r.drivePrefix)) {
		trimmed = trimmed[len(r.drivePrefix):]
	}
	trimmed = strings.Trim(strings.ReplaceAll(trimmed, "/", `\`), `\`)
	if trimmed == "" {
		return RootFRN, true
	}

	// Match each segment against the current directory's children.
	current := uint64(RootFRN)
	for _, segment := range strings.Split(trimmed, `\`) {
		found := false
		for _, child := range r.children[current] {
			if record, ok := r.records[child]; ok && strings.EqualFold(record.name, segment) {
				current = child
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}

	// Done.
	return current, true
}

// CollectSubtreePruned computes the set of directory FRNs reachable from a
// root via BFS, skipping any directory whose name the skipName predicate
// rejects and any FRN in the excluded set. Every kept directory's absolute
// path is pre-resolved into the cache so that later lookups are pure hash
// reads.
func (r *PathResolver) CollectSubtreePruned(rootFRN uint64, skipName func(string) bool, excluded map[uint64]bool) map[uint64]bool {
	rootFRN &= frnMask
	kept := make(map[uint64]bool)
	queue := []uint64{rootFRN}
	kept[rootFRN] = true
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range r.children[current] {
			if kept[child] || excluded[child] {
				continue
			}
			record, ok := r.records[child]
			if !ok {
				continue
			}
			if skipName != nil && skipName(record.name) {
				continue
			}
			kept[child] = true
			queue = append(queue, child)
		}
	}

	// Pre-resolve every kept directory.
	for frn := range kept {
		r.Resolve(frn)
	}

	// Done.
	return kept
}

// DropChildrenMap releases the children map once subtree computation is
// complete.
func (r *PathResolver) DropChildrenMap() {
	r.children = nil
}

// DropRecords releases the FRN record map once materialization no longer
// needs names, leaving only the path cache.
func (r *PathResolver) DropRecords() {
	r.records = nil
}

// PathCache exposes the resolved path cache.
func (r *PathResolver) PathCache() map[uint64]string {
	return r.cache
}

// TakePathCache detaches and returns the resolved path cache, leaving the
// resolver empty. The USN watcher takes ownership of the cache this way.
func (r *PathResolver) TakePathCache() map[uint64]string {
	cache := r.cache
	r.cache = make(map[uint64]string)
	return cache
}
