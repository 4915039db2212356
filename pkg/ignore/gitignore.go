package ignore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/charlesoon/everything/pkg/logging"
)

const (
	// gitignoreDiscoveryDepth is the maximum depth below a home top-level
	// directory at which repositories are discovered.
	gitignoreDiscoveryDepth = 3
)

// repositoryMatcher pairs a repository root with its compiled .gitignore.
type repositoryMatcher struct {
	// root is the repository root path.
	root string
	// matcher is the compiled .gitignore matcher.
	matcher *gitignore.GitIgnore
}

// lazyGitignore discovers and compiles .gitignore matchers for repositories
// below the home directory. Discovery is deferred until the first ignore
// check so that startup isn't taxed when no query ever reaches a repository
// path.
type lazyGitignore struct {
	// home is the home directory beneath which discovery runs.
	home string
	// once guards discovery.
	once sync.Once
	// matchers are the discovered repository matchers.
	matchers []repositoryMatcher
	// logger is the matcher's logger.
	logger *logging.Logger
}

// newLazyGitignore creates a lazy matcher rooted at the specified home
// directory.
func newLazyGitignore(home string, logger *logging.Logger) *lazyGitignore {
	return &lazyGitignore{home: home, logger: logger}
}

// applies indicates whether or not a path falls below the home directory.
func (l *lazyGitignore) applies(path string) bool {
	return strings.HasPrefix(path, l.home+string(filepath.Separator))
}

// ignored indicates whether or not any discovered repository ignores the
// path. The first matcher whose repository root contains the path decides.
func (l *lazyGitignore) ignored(path string, isDir bool) bool {
	// Run discovery on first use.
	l.once.Do(l.discover)

	// Find the owning repository and consult its matcher with a
	// repository-relative path.
	for i := range l.matchers {
		root := l.matchers[i].root
		if !strings.HasPrefix(path, root+string(filepath.Separator)) {
			continue
		}
		relative := filepath.ToSlash(path[len(root)+1:])
		if isDir {
			relative += "/"
		}
		return l.matchers[i].matcher.MatchesPath(relative)
	}

	// No repository owns the path.
	return false
}

// discover walks home top-level directories (skipping dotted names and the
// Library tree) to a bounded depth, compiling the .gitignore of every
// repository root it finds.
func (l *lazyGitignore) discover() {
	children, err := os.ReadDir(l.home)
	if err != nil {
		l.logger.Debugf("gitignore discovery skipped: %v", err)
		return
	}
	for _, child := range children {
		if !child.IsDir() {
			continue
		}
		name := child.Name()
		if strings.HasPrefix(name, ".") || name == "Library" {
			continue
		}
		l.collect(filepath.Join(l.home, name), 0)
	}
	l.logger.Debugf("gitignore discovery found %d repositories", len(l.matchers))
}

// collect recursively discovers repositories below a directory. Recursion
// stops at repository roots, at the depth bound, and at directory names that
// never contain interesting repositories.
func (l *lazyGitignore) collect(dir string, depth int) {
	if depth > gitignoreDiscoveryDepth {
		return
	}

	// If this directory is a repository root, compile its .gitignore (if one
	// exists) and stop descending.
	if _, err := os.Lstat(filepath.Join(dir, ".git")); err == nil {
		ignorePath := filepath.Join(dir, ".gitignore")
		if info, err := os.Lstat(ignorePath); err == nil && info.Mode().IsRegular() {
			if matcher, err := gitignore.CompileIgnoreFile(ignorePath); err == nil {
				l.matchers = append(l.matchers, repositoryMatcher{root: dir, matcher: matcher})
			} else {
				l.logger.Debugf("unable to compile %s: %v", ignorePath, err)
			}
		}
		return
	}

	// Otherwise, recurse into plausible children.
	children, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, child := range children {
		if !child.IsDir() {
			continue
		}
		name := child.Name()
		if strings.HasPrefix(name, ".") || name == "node_modules" || name == "Library" || name == "target" {
			continue
		}
		l.collect(filepath.Join(dir, name), depth+1)
	}
}
