package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/query"
)

const (
	// probeBudget is the time budget for the contains-scan probe in name
	// searches.
	probeBudget = 8 * time.Millisecond
	// scanBudget is the time budget for full contains and glob scans.
	scanBudget = 30 * time.Millisecond
	// searchCacheCeiling is the hard ceiling on cached live-search results.
	// The cache is cleared (not evicted) on overflow.
	searchCacheCeiling = 120
	// selectColumns are the columns fetched for result rows.
	selectColumns = `path, name, dir, is_dir, ext, mtime, size`
)

// searchCache caches catalog search pages keyed by the full query shape. It
// exists because the host re-issues identical queries on focus changes and
// live-search refreshes; any catalog mutation clears it.
type searchCache struct {
	// lock guards the cache map.
	lock sync.Mutex
	// results are the cached pages.
	results map[string][]*index.Entry
}

// newSearchCache creates an empty search cache.
func newSearchCache() *searchCache {
	return &searchCache{results: make(map[string][]*index.Entry)}
}

// get looks up a cached page.
func (c *searchCache) get(key string) ([]*index.Entry, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	page, ok := c.results[key]
	return page, ok
}

// put stores a page, clearing the entire cache first if it has reached its
// ceiling.
func (c *searchCache) put(key string, page []*index.Entry) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if len(c.results) >= searchCacheCeiling {
		c.results = make(map[string][]*index.Entry)
	}
	c.results[key] = page
}

// clear drops all cached pages.
func (c *searchCache) clear() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.results = make(map[string][]*index.Entry)
}

// sortClause computes the ORDER BY clause for a sort dimension and
// direction. Unknown mtime/size values always order last, regardless of
// direction.
func sortClause(sortBy index.SortBy, sortDir index.SortDirection) string {
	direction := "ASC"
	if sortDir == index.SortDescending {
		direction = "DESC"
	}
	switch sortBy {
	case index.SortByMTime:
		return fmt.Sprintf("CASE WHEN mtime IS NULL THEN 1 ELSE 0 END, mtime %s, name COLLATE NOCASE ASC", direction)
	case index.SortBySize:
		return fmt.Sprintf("CASE WHEN size IS NULL THEN 1 ELSE 0 END, size %s, name COLLATE NOCASE ASC", direction)
	default:
		return fmt.Sprintf("name COLLATE NOCASE %s, path COLLATE NOCASE %s", direction, direction)
	}
}

// Search answers a parsed query from the catalog, returning at most limit
// entries starting at offset under the requested ordering. Queries that
// exceed their scan budget return best-effort partial pages without error.
func (s *Store) Search(q *query.Query, limit, offset int, sortBy index.SortBy, sortDir index.SortDirection) ([]*index.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	// Consult the live-search cache.
	key := fmt.Sprintf("%d|%s|%d|%d|%s|%s", q.Kind, q.Raw, limit, offset, sortBy, sortDir)
	if page, ok := s.cache.get(key); ok {
		return page, nil
	}

	// Dispatch per mode.
	var page []*index.Entry
	var err error
	ordering := sortClause(sortBy, sortDir)
	switch q.Kind {
	case query.KindEmpty:
		page, err = s.searchAll(ordering, limit, offset)
	case query.KindExtension:
		page, err = s.searchExtension(q.Ext, ordering, limit, offset)
	case query.KindName:
		page, err = s.searchName(q.Raw, ordering, limit, offset)
	case query.KindGlob:
		page, err = s.searchGlob(q.NameLike, ordering, limit, offset)
	case query.KindPath:
		page, err = s.searchPath(q, ordering, limit, offset)
	}
	if err != nil {
		return nil, err
	}

	// Cache and return the page.
	s.cache.put(key, page)
	return page, nil
}

// searchAll implements the empty query mode.
func (s *Store) searchAll(ordering string, limit, offset int) ([]*index.Entry, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM entries ORDER BY %s LIMIT ? OFFSET ?`, selectColumns, ordering),
		limit, offset,
	)
	if err != nil {
		return nil, errors.Wrap(err, "unable to run empty query")
	}
	return scanEntries(rows)
}

// searchExtension implements the extension query mode.
func (s *Store) searchExtension(ext, ordering string, limit, offset int) ([]*index.Entry, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM entries WHERE ext = ? ORDER BY %s LIMIT ? OFFSET ?`, selectColumns, ordering),
		ext, limit, offset,
	)
	if err != nil {
		return nil, errors.Wrap(err, "unable to run extension query")
	}
	return scanEntries(rows)
}

// searchName implements the two-phase name search: exact and prefix matches
// via the name index first; if that yields nothing, a short probe decides
// whether a full contains scan is worth its budget.
func (s *Store) searchName(raw, ordering string, limit, offset int) ([]*index.Entry, error) {
	escaped := query.EscapeLike(raw)

	// Phase 1: exact and prefix matches.
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM entries WHERE name LIKE ? ESCAPE '\' ORDER BY %s LIMIT ? OFFSET ?`,
			selectColumns, ordering),
		escaped+"%", limit, offset,
	)
	if err != nil {
		return nil, errors.Wrap(err, "unable to run name prefix query")
	}
	page, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(page) > 0 {
		return page, nil
	}

	// Probe: decide within a short budget whether any contains match exists
	// at all. A timeout or an empty probe keeps the expensive scan off the
	// hot path.
	probeContext, cancelProbe := context.WithTimeout(context.Background(), probeBudget)
	defer cancelProbe()
	var one int
	err = s.db.QueryRowContext(probeContext,
		`SELECT 1 FROM entries WHERE name LIKE ? ESCAPE '\' LIMIT 1`,
		"%"+escaped+"%",
	).Scan(&one)
	if err == sql.ErrNoRows || probeContext.Err() != nil {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "unable to probe name query")
	}

	// Full contains scan under the scan budget.
	return s.budgetedQuery(
		fmt.Sprintf(`SELECT %s FROM entries WHERE name LIKE ? ESCAPE '\' ORDER BY %s LIMIT ? OFFSET ?`,
			selectColumns, ordering),
		"%"+escaped+"%", limit, offset,
	)
}

// searchGlob implements the glob query mode under the scan budget.
func (s *Store) searchGlob(nameLike, ordering string, limit, offset int) ([]*index.Entry, error) {
	return s.budgetedQuery(
		fmt.Sprintf(`SELECT %s FROM entries WHERE name LIKE ? ESCAPE '\' ORDER BY %s LIMIT ? OFFSET ?`,
			selectColumns, ordering),
		nameLike, limit, offset,
	)
}

// searchPath implements the path query mode. An absolute directory hint
// becomes a range scan on dir; otherwise suffix and infix LIKE variants
// apply. The extension shortcut collapses a name pattern of the form
// "%.<ext>" into an equality constraint on ext.
func (s *Store) searchPath(q *query.Query, ordering string, limit, offset int) ([]*index.Entry, error) {
	// Compute the directory constraint and its arguments.
	var dirConstraint string
	var arguments []interface{}
	hint := strings.TrimSpace(q.DirHint)
	if hint == "" {
		dirConstraint = "1=1"
	} else if filepath.IsAbs(hint) && !strings.ContainsAny(hint, "*?") {
		resolved := filepath.Clean(hint)
		dirConstraint = `(dir = ? OR dir LIKE ? ESCAPE '\')`
		arguments = append(arguments, resolved, escapeLikeLiteral(resolved)+string(filepath.Separator)+"%")
	} else {
		var pattern string
		if strings.ContainsAny(hint, "*?") {
			pattern = query.GlobToLike(hint)
		} else {
			pattern = query.EscapeLike(hint)
		}
		dirConstraint = `(dir LIKE ? ESCAPE '\' OR dir LIKE ? ESCAPE '\')`
		arguments = append(arguments, "%"+separatorPattern+pattern, "%"+separatorPattern+pattern+separatorPattern+"%")
	}

	// Compute the name constraint, collapsing pure extension patterns.
	nameConstraint := "1=1"
	if q.NameLike != "" && q.NameLike != "%" {
		if ext, ok := pureExtensionPattern(q.NameLike); ok {
			nameConstraint = "ext = ?"
			arguments = append(arguments, ext)
		} else {
			nameConstraint = `name LIKE ? ESCAPE '\'`
			arguments = append(arguments, q.NameLike)
		}
	}

	// Run the query under the scan budget.
	statement := fmt.Sprintf(`SELECT %s FROM entries WHERE %s AND %s ORDER BY %s LIMIT ? OFFSET ?`,
		selectColumns, dirConstraint, nameConstraint, ordering)
	arguments = append(arguments, limit, offset)
	return s.budgetedQuery(statement, arguments...)
}

// separatorPattern is the platform separator as it appears in LIKE patterns.
var separatorPattern = string(filepath.Separator)

// pureExtensionPattern recognizes name patterns of the form "%.<ext>" with no
// further wildcards and returns the extension.
func pureExtensionPattern(nameLike string) (string, bool) {
	rest, ok := strings.CutPrefix(nameLike, "%.")
	if !ok || rest == "" {
		return "", false
	}
	if strings.ContainsAny(rest, `%_\`) {
		return "", false
	}
	return strings.ToLower(rest), true
}

// budgetedQuery runs a query under the scan budget, returning whatever rows
// were collected if the budget expires mid-scan.
func (s *Store) budgetedQuery(statement string, arguments ...interface{}) ([]*index.Entry, error) {
	scanContext, cancel := context.WithTimeout(context.Background(), scanBudget)
	defer cancel()
	rows, err := s.db.QueryContext(scanContext, statement, arguments...)
	if err != nil {
		// Budget exhaustion before any row is a best-effort empty result.
		if scanContext.Err() != nil {
			return nil, nil
		}
		return nil, errors.Wrap(err, "unable to run budgeted query")
	}
	defer rows.Close()

	// Collect rows until completion or budget exhaustion.
	var results []*index.Entry
	for rows.Next() {
		var entry index.Entry
		var isDir int
		var ext sql.NullString
		var mtime, size sql.NullInt64
		if err := rows.Scan(&entry.Path, &entry.Name, &entry.Dir, &isDir, &ext, &mtime, &size); err != nil {
			if scanContext.Err() != nil {
				return results, nil
			}
			return nil, errors.Wrap(err, "unable to scan entry row")
		}
		entry.IsDir = isDir != 0
		if ext.Valid && !entry.IsDir {
			entry.Ext = ext.String
		}
		if mtime.Valid {
			value := mtime.Int64
			entry.MTime = &value
		}
		if size.Valid {
			value := size.Int64
			entry.Size = &value
		}
		results = append(results, &entry)
	}
	if err := rows.Err(); err != nil && scanContext.Err() == nil {
		return nil, errors.Wrap(err, "unable to iterate entry rows")
	}
	return results, nil
}
