// Package watching implements live change propagation: the USN journal
// watcher on Windows, the FSEvents watcher on macOS, and the recursive
// directory-change fallback everywhere. All of them debounce and coalesce
// raw events into catalog mutations through a shared applier.
package watching

import (
	"time"
)

// ChangeKind identifies the kind of a coalesced filesystem change.
type ChangeKind uint8

const (
	// ChangeCreate indicates that a path appeared.
	ChangeCreate ChangeKind = iota
	// ChangeModify indicates that a path's content or metadata changed.
	ChangeModify
	// ChangeDelete indicates that a path disappeared.
	ChangeDelete
	// ChangeRename indicates that a path moved; both halves are known.
	ChangeRename
)

// String provides a human-readable representation of a change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCreate:
		return "create"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	case ChangeRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is a single coalesced filesystem change.
type Change struct {
	// Kind is the change kind.
	Kind ChangeKind
	// Path is the affected path (the new path for renames).
	Path string
	// OldPath is the previous path for renames.
	OldPath string
}

// renamePairTimeout is how long a rename-from half waits for its rename-to
// half before expiring to a delete.
const renamePairTimeout = 500 * time.Millisecond

// pendingRename is a rename-from half awaiting its pair.
type pendingRename struct {
	// oldPath is the rename's source path.
	oldPath string
	// recordedAt is when the half arrived.
	recordedAt time.Time
}

// dedupeChanges deduplicates changes per path with last-write-wins
// semantics. Renames are first decomposed into a delete of the old path and
// a create of the new path, so that ordering across paths stays
// deterministic.
func dedupeChanges(changes []Change) []Change {
	// Decompose renames.
	decomposed := make([]Change, 0, len(changes))
	for _, change := range changes {
		if change.Kind == ChangeRename {
			decomposed = append(decomposed,
				Change{Kind: ChangeDelete, Path: change.OldPath},
				Change{Kind: ChangeCreate, Path: change.Path},
			)
		} else {
			decomposed = append(decomposed, change)
		}
	}

	// Keep only the last change per path, preserving arrival order of the
	// surviving changes.
	last := make(map[string]int, len(decomposed))
	for i, change := range decomposed {
		last[change.Path] = i
	}
	deduped := make([]Change, 0, len(last))
	for i, change := range decomposed {
		if last[change.Path] == i {
			deduped = append(deduped, change)
		}
	}

	// Done.
	return deduped
}
