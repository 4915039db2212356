// Package ignore implements the pathignore rule engine used by the indexers,
// the watchers, and the catchup scanner to decide which filesystem subtrees
// never enter the catalog.
package ignore

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/logging"
)

// builtinSkipSegments are path segment names that are always skipped at any
// depth, independent of user rules.
var builtinSkipSegments = map[string]bool{
	".git":         true,
	"node_modules": true,
	".trash":       true,
	".trashes":     true,
	".npm":         true,
	".cache":       true,
	"$recycle.bin": true,
	"system volume information": true,
}

// builtinSkipInfixes are path fragments that are always skipped when they
// appear anywhere in a path. They are stored in slash-normalized lowercase.
var builtinSkipInfixes = []string{
	"library/caches",
	"library/containers",
	"library/developer/coresimulator/caches",
}

// ruleKind identifies the family of a parsed ignore rule.
type ruleKind uint8

const (
	// ruleRoot matches an exact absolute path and everything beneath it.
	ruleRoot ruleKind = iota
	// ruleSegment matches a path segment name at any depth.
	ruleSegment
	// ruleGlob matches a glob pattern against the full path.
	ruleGlob
)

// rule is a single parsed ignore rule.
type rule struct {
	// kind is the rule's family.
	kind ruleKind
	// value is the lowercased root path, segment name, or glob pattern.
	value string
}

// parseRule classifies and validates a single user rule. Absolute paths are
// root rules, bare names are segment rules, and anything containing glob
// metacharacters is a full-path glob rule.
func parseRule(raw string) (rule, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return rule{}, errors.New("empty rule")
	}

	// Classify glob rules first so that absolute globs aren't mistaken for
	// roots.
	if strings.ContainsAny(trimmed, "*?[{") {
		pattern := strings.ToLower(normalizeSlashes(trimmed))
		if !doublestar.ValidatePattern(pattern) {
			return rule{}, errors.Errorf("invalid glob pattern: %s", trimmed)
		}
		return rule{kind: ruleGlob, value: pattern}, nil
	}

	// Classify absolute roots.
	if filepath.IsAbs(trimmed) {
		return rule{kind: ruleRoot, value: strings.ToLower(normalizeSlashes(filepath.Clean(trimmed)))}, nil
	}

	// Reject relative multi-segment rules, which are neither roots nor
	// segment names.
	if strings.ContainsAny(trimmed, "/\\") {
		return rule{}, errors.Errorf("relative path rule must be absolute or a bare name: %s", trimmed)
	}

	// Everything else is a segment name.
	return rule{kind: ruleSegment, value: strings.ToLower(trimmed)}, nil
}

// Set evaluates ignore rules for the indexer and watchers. Rule evaluation is
// idempotent per path and safe for concurrent usage once constructed; only
// the lazy gitignore matcher carries synchronization.
type Set struct {
	// roots are lowercased absolute path roots.
	roots []string
	// segments are lowercased segment names prohibited at any depth.
	segments map[string]bool
	// globs are lowercased full-path glob patterns.
	globs []string
	// gitignore is the lazily constructed gitignore-style matcher for paths
	// below the home directory. It may be nil if disabled.
	gitignore *lazyGitignore
	// logger is the set's logger.
	logger *logging.Logger
}

// NewSet parses user rules into a set. Invalid rules are logged and dropped
// rather than failing construction, since a single bad pathignore line must
// not disable indexing. If home is non-empty, a gitignore-style matcher is
// built lazily for paths beneath it.
func NewSet(rules []string, home string, logger *logging.Logger) *Set {
	set := &Set{
		segments: make(map[string]bool),
		logger:   logger,
	}
	for _, raw := range rules {
		parsed, err := parseRule(raw)
		if err != nil {
			logger.Warnf("dropping ignore rule %q: %v", raw, err)
			continue
		}
		switch parsed.kind {
		case ruleRoot:
			set.roots = append(set.roots, parsed.value)
		case ruleSegment:
			set.segments[parsed.value] = true
		case ruleGlob:
			set.globs = append(set.globs, parsed.value)
		}
	}
	if home != "" {
		set.gitignore = newLazyGitignore(home, logger)
	}
	return set
}

// normalizeSlashes rewrites backslashes to forward slashes for separator
// neutral comparison.
func normalizeSlashes(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// Roots returns the set's lowercased absolute ignore roots. The MFT indexer
// uses them to exclude directory subtrees by FRN before path materialization.
func (s *Set) Roots() []string {
	return s.roots
}

// SkipsSegment indicates whether or not a bare segment name is prohibited at
// any depth, either by a builtin or by a user segment rule. The comparison is
// case-insensitive.
func (s *Set) SkipsSegment(name string) bool {
	lower := strings.ToLower(name)
	if builtinSkipSegments[lower] {
		return true
	}
	return s.segments[lower]
}

// ShouldSkip indicates whether or not a path is skippable: true iff any rule
// matches or any path segment is in the builtin skip-name set.
func (s *Set) ShouldSkip(path string, isDir bool) bool {
	lowered := strings.ToLower(normalizeSlashes(path))

	// Check builtin and user segment rules against every path segment.
	for _, segment := range strings.Split(lowered, "/") {
		if segment == "" {
			continue
		}
		if builtinSkipSegments[segment] || s.segments[segment] {
			return true
		}
	}

	// Check builtin path infixes.
	for _, infix := range builtinSkipInfixes {
		if strings.Contains(lowered, "/"+infix+"/") || strings.HasSuffix(lowered, "/"+infix) {
			return true
		}
	}

	// Check absolute roots.
	for _, root := range s.roots {
		if lowered == root || strings.HasPrefix(lowered, root+"/") {
			return true
		}
	}

	// Check full-path globs. Patterns were validated at parse time, so match
	// errors can't occur.
	for _, pattern := range s.globs {
		if matched, _ := doublestar.Match(pattern, lowered); matched {
			return true
		}
	}

	// Consult the gitignore matcher for paths below the home directory.
	if s.gitignore != nil && s.gitignore.applies(path) {
		if s.gitignore.ignored(path, isDir) {
			return true
		}
	}

	// Not skippable.
	return false
}

// FilterChildren prunes a directory listing in place, returning the names
// that survive rule evaluation. Walkers use it to avoid descending into
// ignored subtrees at all.
func (s *Set) FilterChildren(dir string, names []string) []string {
	kept := names[:0]
	for _, name := range names {
		if s.SkipsSegment(name) {
			continue
		}
		if s.ShouldSkip(index.JoinPath(dir, name), true) {
			continue
		}
		kept = append(kept, name)
	}
	return kept
}
