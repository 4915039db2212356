package query

import (
	"strings"
)

// Kind identifies the semantic mode of a parsed query.
type Kind uint8

const (
	// KindEmpty indicates a query with no filter.
	KindEmpty Kind = iota
	// KindName indicates a literal substring search over names.
	KindName
	// KindGlob indicates a wildcard pattern search over names.
	KindGlob
	// KindExtension indicates a pure extension search.
	KindExtension
	// KindPath indicates a search constrained by a directory hint.
	KindPath
)

// String provides a human-readable representation of a query kind.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindName:
		return "name"
	case KindGlob:
		return "glob"
	case KindExtension:
		return "extension"
	case KindPath:
		return "path"
	default:
		return "unknown"
	}
}

// Query is the parsed form of a user search string. Exactly one mode applies;
// the LIKE-syntax fields that drive catalog queries and the in-memory matcher
// are precomputed at parse time.
type Query struct {
	// Kind is the query's semantic mode.
	Kind Kind
	// NameLike is the LIKE pattern to apply against entry names. It is empty
	// for empty queries.
	NameLike string
	// Ext is the lowercased target extension for extension queries.
	Ext string
	// PathLike is the LIKE pattern to apply against parent directories for
	// path queries.
	PathLike string
	// DirHint is the raw (trimmed) directory portion of a path query.
	DirHint string
	// Raw is the trimmed user input.
	Raw string
}

// hasGlobChars indicates whether or not a string contains glob wildcards.
func hasGlobChars(value string) bool {
	return strings.ContainsAny(value, "*?")
}

// EscapeLike escapes the LIKE metacharacters in a literal string using
// backslash escapes.
func EscapeLike(value string) string {
	var builder strings.Builder
	builder.Grow(len(value) + 8)
	for _, r := range value {
		switch r {
		case '\\':
			builder.WriteString(`\\`)
		case '%':
			builder.WriteString(`\%`)
		case '_':
			builder.WriteString(`\_`)
		default:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// GlobToLike converts a user glob pattern (* and ?) into LIKE syntax,
// escaping any literal LIKE metacharacters.
func GlobToLike(pattern string) string {
	var builder strings.Builder
	builder.Grow(len(pattern) + 8)
	for _, r := range pattern {
		switch r {
		case '*':
			builder.WriteByte('%')
		case '?':
			builder.WriteByte('_')
		case '%':
			builder.WriteString(`\%`)
		case '_':
			builder.WriteString(`\_`)
		case '\\':
			builder.WriteString(`\\`)
		default:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// Parse normalizes a user search string into exactly one query mode.
//
// A string containing a slash is a path query split on the last slash, with
// both halves trimmed independently. A string of the form "*.<ext>" with no
// other wildcards is an extension query. Any other string containing
// wildcards is a glob query, and everything else is a literal name query.
func Parse(input string) *Query {
	// Trim the input and check for an empty query.
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return &Query{Kind: KindEmpty, Raw: trimmed}
	}

	// Check for a path query.
	if slash := strings.LastIndexByte(trimmed, '/'); slash >= 0 {
		dirPart := strings.TrimSpace(trimmed[:slash])
		namePart := strings.TrimSpace(trimmed[slash+1:])

		// Compute the directory LIKE pattern. An empty directory hint matches
		// every directory, degrading to a name-only constraint.
		var pathLike string
		if dirPart == "" {
			pathLike = "%"
		} else if hasGlobChars(dirPart) {
			pathLike = "%" + GlobToLike(dirPart) + "/%"
		} else {
			pathLike = "%" + EscapeLike(dirPart) + "/%"
		}

		// Compute the name LIKE pattern.
		var nameLike string
		if namePart == "" {
			nameLike = "%"
		} else if hasGlobChars(namePart) {
			nameLike = GlobToLike(namePart)
		} else {
			nameLike = "%" + EscapeLike(namePart) + "%"
		}

		return &Query{
			Kind:     KindPath,
			NameLike: nameLike,
			PathLike: pathLike,
			DirHint:  dirPart,
			Raw:      trimmed,
		}
	}

	// Check for an extension query: "*.<ext>" with no further wildcards.
	if extPart, ok := strings.CutPrefix(trimmed, "*."); ok {
		if extPart != "" && !hasGlobChars(extPart) {
			return &Query{
				Kind:     KindExtension,
				NameLike: GlobToLike(trimmed),
				Ext:      strings.ToLower(extPart),
				Raw:      trimmed,
			}
		}
	}

	// Check for a glob query.
	if hasGlobChars(trimmed) {
		return &Query{
			Kind:     KindGlob,
			NameLike: GlobToLike(trimmed),
			Raw:      trimmed,
		}
	}

	// Fall back to a literal name query.
	return &Query{
		Kind:     KindName,
		NameLike: "%" + EscapeLike(trimmed) + "%",
		Raw:      trimmed,
	}
}
