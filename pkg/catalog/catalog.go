// Package catalog implements the persistent on-disk catalog: a SQLite store
// used for cold-start resume, for offline catchup, and as the search backend
// once the transient in-memory index is freed.
package catalog

import (
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/charlesoon/everything/pkg/index"
	"github.com/charlesoon/everything/pkg/logging"
)

const (
	// bulkBatchSize is the number of rows written per transaction during
	// bulk load.
	bulkBatchSize = 50000
	// busyTimeoutMilliseconds is the per-connection busy timeout.
	busyTimeoutMilliseconds = 3000
)

// Well-known meta table keys.
const (
	// MetaLastRunID stores the most recent full-index run identifier.
	MetaLastRunID = "last_run_id"
	// MetaIndexComplete stores whether or not the last full index finished.
	MetaIndexComplete = "index_complete"
	// MetaLastUSN stores the USN journal position for watcher resume.
	MetaLastUSN = "win_last_usn"
	// MetaJournalID stores the USN journal identity for watcher resume.
	MetaJournalID = "win_journal_id"
	// MetaLastActiveTime stores the watcher heartbeat timestamp.
	MetaLastActiveTime = "win_last_active_ts"
	// MetaMacLastEventID stores the FSEvents position for history replay.
	MetaMacLastEventID = "mac_last_event_id"
	// MetaEntryCount stores the cached entry count.
	MetaEntryCount = "entries_count"
	// MetaLastUpdated stores the timestamp of the last catalog mutation.
	MetaLastUpdated = "last_updated"
	// MetaInstanceID stores the catalog's identity, regenerated on reset.
	MetaInstanceID = "instance_id"
)

// Store is the persistent catalog. Its connection pool is safe for concurrent
// usage; long-lived components (such as the watcher) may additionally hold a
// dedicated connection from the pool returned by DB.
type Store struct {
	// path is the database file path.
	path string
	// db is the pooled database handle.
	db *sql.DB
	// cache is the live-search result cache.
	cache *searchCache
	// logger is the store's logger.
	logger *logging.Logger
}

// Open opens (creating if necessary) the catalog at the specified path and
// ensures its schema exists. The write-ahead-log sidecar is created next to
// the database file.
func Open(path string, logger *logging.Logger) (*Store, error) {
	// Build the DSN with per-connection pragmas: write-ahead logging, relaxed
	// synchronous mode, in-memory temporary storage, and a busy timeout.
	dsn := fmt.Sprintf("file:%s?%s", filepath.ToSlash(path), url.Values{
		"_pragma": []string{
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"temp_store(MEMORY)",
			fmt.Sprintf("busy_timeout(%d)", busyTimeoutMilliseconds),
		},
	}.Encode())

	// Open the pooled handle.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open catalog database")
	}

	// Create the store.
	store := &Store{
		path:   path,
		db:     db,
		cache:  newSearchCache(),
		logger: logger,
	}

	// Ensure the schema exists.
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	// Done.
	return store, nil
}

// Close closes the catalog's connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the pooled handle for components (such as the watcher) that hold
// a dedicated connection for their lifetime.
func (s *Store) DB() *sql.DB {
	return s.db
}

// initialize creates the entry and meta tables and the steady-state secondary
// indices, and ensures the catalog has an instance identity.
func (s *Store) initialize() error {
	// Create the tables.
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			dir TEXT NOT NULL,
			is_dir INTEGER NOT NULL,
			ext TEXT,
			mtime INTEGER,
			size INTEGER,
			indexed_at INTEGER NOT NULL,
			run_id INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT
		);
	`); err != nil {
		return errors.Wrap(err, "unable to create catalog schema")
	}

	// Create the steady-state secondary indices. During bulk load these are
	// dropped and recreated at finalize.
	if err := s.createNameIndex(); err != nil {
		return err
	}
	if err := s.createRemainingIndices(); err != nil {
		return err
	}

	// Ensure the catalog has an instance identity.
	if identity, err := s.GetMeta(MetaInstanceID); err != nil {
		return err
	} else if identity == "" {
		if err := s.SetMeta(MetaInstanceID, uuid.NewString()); err != nil {
			return err
		}
	}

	// Done.
	return nil
}

// createNameIndex creates the case-insensitive name index, the first index
// restored after bulk load so that name queries become fast before the rest.
func (s *Store) createNameIndex() error {
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name COLLATE NOCASE)`)
	return errors.Wrap(err, "unable to create name index")
}

// createRemainingIndices creates the remaining steady-state secondary
// indices.
func (s *Store) createRemainingIndices() error {
	_, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entries_dir_ext_name ON entries(dir, ext, name);
		CREATE INDEX IF NOT EXISTS idx_entries_mtime ON entries(mtime);
		CREATE INDEX IF NOT EXISTS idx_entries_ext_name ON entries(ext, name);
	`)
	return errors.Wrap(err, "unable to create secondary indices")
}

// GetMeta reads a meta value, returning an empty string if the key is
// absent.
func (s *Store) GetMeta(key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	} else if err != nil {
		return "", errors.Wrapf(err, "unable to read meta key %s", key)
	}
	return value.String, nil
}

// SetMeta writes a meta value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return errors.Wrapf(err, "unable to write meta key %s", key)
}

// GetMetaInt reads a meta value as an integer, returning the fallback if the
// key is absent or malformed.
func (s *Store) GetMetaInt(key string, fallback int64) (int64, error) {
	value, err := s.GetMeta(key)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback, nil
	}
	return parsed, nil
}

// SetMetaInt writes a meta value as an integer.
func (s *Store) SetMetaInt(key string, value int64) error {
	return s.SetMeta(key, strconv.FormatInt(value, 10))
}

// IndexComplete indicates whether or not the last full index ran to
// completion.
func (s *Store) IndexComplete() (bool, error) {
	value, err := s.GetMeta(MetaIndexComplete)
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

// NextRunID allocates and persists the next full-index run identifier.
func (s *Store) NextRunID() (int64, error) {
	current, err := s.GetMetaInt(MetaLastRunID, 0)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := s.SetMetaInt(MetaLastRunID, next); err != nil {
		return 0, err
	}
	return next, nil
}

// Count returns the number of entries in the catalog.
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "unable to count entries")
	}
	return count, nil
}

// RefreshCachedCounts recounts entries, persists the cached counters, and
// returns the count. The cached counters let a restart present Ready with
// populated counts before running any query.
func (s *Store) RefreshCachedCounts(now int64) (int64, error) {
	count, err := s.Count()
	if err != nil {
		return 0, err
	}
	if err := s.SetMetaInt(MetaEntryCount, count); err != nil {
		return 0, err
	}
	if err := s.SetMetaInt(MetaLastUpdated, now); err != nil {
		return 0, err
	}
	return count, nil
}

// Wipe removes every entry and all watcher state, preparing the catalog for a
// full re-index. The instance identity is regenerated.
func (s *Store) Wipe() error {
	if _, err := s.db.Exec(`DELETE FROM entries`); err != nil {
		return errors.Wrap(err, "unable to clear entries")
	}
	if _, err := s.db.Exec(`DELETE FROM meta`); err != nil {
		return errors.Wrap(err, "unable to clear meta")
	}
	if err := s.SetMeta(MetaInstanceID, uuid.NewString()); err != nil {
		return err
	}
	s.cache.clear()
	return nil
}

// InvalidateSearchCache drops any cached live-search results. It must be
// called after any catalog mutation.
func (s *Store) InvalidateSearchCache() {
	s.cache.clear()
}

// scanEntries converts result rows into host-facing entries.
func scanEntries(rows *sql.Rows) ([]*index.Entry, error) {
	defer rows.Close()
	var results []*index.Entry
	for rows.Next() {
		var entry index.Entry
		var isDir int
		var ext sql.NullString
		var mtime, size sql.NullInt64
		if err := rows.Scan(&entry.Path, &entry.Name, &entry.Dir, &isDir, &ext, &mtime, &size); err != nil {
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
	return results, errors.Wrap(rows.Err(), "unable to iterate entry rows")
}
