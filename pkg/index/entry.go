package index

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// entryFlags is a bit set describing which optional fields of a CompactEntry
// are populated.
type entryFlags uint8

const (
	// entryIsDir indicates that the entry describes a directory.
	entryIsDir entryFlags = 1 << iota
	// entryHasMTime indicates that the entry's modification time is known.
	entryHasMTime
	// entryHasSize indicates that the entry's size is known.
	entryHasSize
)

// CompactEntry is the hot-path record representation shared by the indexers,
// the memory index, and the watchers. The full path is never stored; it is
// derived from the parent directory and name on demand.
type CompactEntry struct {
	// Name is the entry's base name.
	Name string
	// Dir is the absolute path of the entry's parent directory.
	Dir string
	// Ext is the entry's lowercased extension, without the leading dot. It is
	// empty for directories.
	Ext string
	// MTime is the entry's modification time in Unix seconds. It is only
	// meaningful if the corresponding flag is set.
	MTime int64
	// Size is the entry's size in bytes. It is only meaningful if the
	// corresponding flag is set.
	Size int64
	// flags records which optional fields are populated and whether or not
	// the entry is a directory.
	flags entryFlags
}

// NewFile creates a compact entry describing a file.
func NewFile(dir, name string, size, mtime int64) CompactEntry {
	return CompactEntry{
		Name:  name,
		Dir:   dir,
		Ext:   ExtensionOf(name),
		MTime: mtime,
		Size:  size,
		flags: entryHasMTime | entryHasSize,
	}
}

// NewFileWithoutMetadata creates a compact entry describing a file whose size
// and modification time are unknown.
func NewFileWithoutMetadata(dir, name string) CompactEntry {
	return CompactEntry{
		Name: name,
		Dir:  dir,
		Ext:  ExtensionOf(name),
	}
}

// NewDirectory creates a compact entry describing a directory. A zero mtime is
// treated as unknown.
func NewDirectory(dir, name string, mtime int64) CompactEntry {
	entry := CompactEntry{
		Name:  name,
		Dir:   dir,
		flags: entryIsDir,
	}
	if mtime != 0 {
		entry.MTime = mtime
		entry.flags |= entryHasMTime
	}
	return entry
}

// IsDir indicates whether or not the entry describes a directory.
func (e *CompactEntry) IsDir() bool {
	return e.flags&entryIsDir != 0
}

// MTimeValid indicates whether or not the entry's modification time is known.
func (e *CompactEntry) MTimeValid() bool {
	return e.flags&entryHasMTime != 0
}

// SizeValid indicates whether or not the entry's size is known.
func (e *CompactEntry) SizeValid() bool {
	return e.flags&entryHasSize != 0
}

// Path computes the entry's full path from its parent directory and name.
func (e *CompactEntry) Path() string {
	return JoinPath(e.Dir, e.Name)
}

// Entry converts the compact representation into the host-facing form.
func (e *CompactEntry) Entry() *Entry {
	// Create the base entry.
	entry := &Entry{
		Name:  e.Name,
		Dir:   e.Dir,
		Path:  e.Path(),
		IsDir: e.IsDir(),
	}

	// Populate optional fields.
	if !e.IsDir() {
		entry.Ext = e.Ext
	}
	if e.MTimeValid() {
		mtime := e.MTime
		entry.MTime = &mtime
	}
	if e.SizeValid() {
		size := e.Size
		entry.Size = &size
	}

	// Done.
	return entry
}

// Entry is the host-facing record for a file or directory, as returned by
// search and rename commands.
type Entry struct {
	// Name is the entry's base name.
	Name string `json:"name"`
	// Dir is the absolute path of the entry's parent directory.
	Dir string `json:"dir"`
	// Path is the entry's full path.
	Path string `json:"path"`
	// IsDir indicates whether or not the entry is a directory.
	IsDir bool `json:"is_dir"`
	// Ext is the entry's lowercased extension. It is omitted for directories.
	Ext string `json:"ext,omitempty"`
	// MTime is the entry's modification time in Unix seconds, if known.
	MTime *int64 `json:"mtime,omitempty"`
	// Size is the entry's size in bytes, if known.
	Size *int64 `json:"size,omitempty"`
}

// JoinPath joins a parent directory and base name without cleaning either
// component beyond separator handling. Unlike filepath.Join, it preserves the
// parent exactly, which keeps the path == dir + separator + name invariant
// intact for catalog rows.
func JoinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if dir[len(dir)-1] == filepath.Separator {
		return dir + name
	}
	return dir + string(filepath.Separator) + name
}

// SplitPath splits a full path into its parent directory and base name. It is
// the inverse of JoinPath for cleaned absolute paths.
func SplitPath(path string) (string, string) {
	dir, name := filepath.Split(path)
	if len(dir) > 1 && dir[len(dir)-1] == filepath.Separator {
		dir = dir[:len(dir)-1]
	}
	return dir, name
}

// ExtensionOf extracts the lowercased extension of a file name, without the
// leading dot. Names without an extension, and names whose only dot is the
// leading character (dotfiles), yield an empty extension.
func ExtensionOf(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || dot == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[dot+1:])
}

// StemOf extracts the portion of a file name before its extension. Names
// without an extension yield the entire name.
func StemOf(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return name
	}
	return name[:dot]
}

// Lower produces the canonical lowercased form of a name for case-insensitive
// comparison. Names are NFC-normalized first so that decomposed forms
// produced by macOS filesystems compare equal to their composed input.
func Lower(name string) string {
	if !norm.NFC.IsNormalString(name) {
		name = norm.NFC.String(name)
	}
	return strings.ToLower(name)
}
