package service

import (
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/query"
)

const (
	// defaultLimit is the page limit applied when the host doesn't specify
	// one.
	defaultLimit = 300
	// maximumLimit is the largest page the host may request.
	maximumLimit = 1000
	// shortQueryLimit is the effective limit for queries of one character or
	// less, which would otherwise match enormous swaths of the catalog.
	shortQueryLimit = 100
)

// SearchOptions are the host-facing search parameters.
type SearchOptions struct {
	// Limit is the requested page size; zero applies the default.
	Limit int
	// Offset is the page offset.
	Offset int
	// SortBy is the sort dimension name ("name", "mtime", or "size").
	SortBy string
	// SortDir is the sort direction name ("asc" or "desc").
	SortDir string
}

// Search executes a query, dispatching to the memory index while it is
// published and to the catalog afterward.
func (s *Service) Search(input string, options SearchOptions) ([]*index.Entry, error) {
	// Validate the sort parameters.
	sortBy, ok := index.ParseSortBy(options.SortBy)
	if !ok {
		return nil, errors.Errorf("invalid sort dimension: %s", options.SortBy)
	}
	sortDir, ok := index.ParseSortDirection(options.SortDir)
	if !ok {
		return nil, errors.Errorf("invalid sort direction: %s", options.SortDir)
	}

	// Parse the query and compute the effective limit.
	parsed := query.Parse(input)
	limit := options.Limit
	if limit <= 0 {
		limit = defaultLimit
	} else if limit > maximumLimit {
		limit = maximumLimit
	}
	// Queries of one character or less (the empty query included) clamp to
	// the short-query limit; they match enormous swaths of the catalog.
	if utf8.RuneCountInString(parsed.Raw) <= 1 && limit > shortQueryLimit {
		limit = shortQueryLimit
	}
	offset := options.Offset
	if offset < 0 {
		offset = 0
	}

	// Dispatch to the memory index while it exists.
	if mem := s.holder.Get(); mem != nil {
		return mem.Search(parsed, limit, offset, sortBy, sortDir), nil
	}

	// Otherwise the catalog is the search backend.
	return s.store.Search(parsed, limit, offset, sortBy, sortDir)
}
