package catalog

import (
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/charlesoon/everything/pkg/index"
)

// BeginBulkLoad switches the catalog into bulk-load mode: secondary indices
// are dropped and WAL autocheckpointing is disabled so that batch inserts
// proceed at full speed. Rows are stamped with the run identifier passed to
// BulkInsert; FinishBulkLoad restores steady state.
func (s *Store) BeginBulkLoad() error {
	// Mark the index as incomplete until finalize.
	if err := s.SetMeta(MetaIndexComplete, "0"); err != nil {
		return err
	}

	// Drop the secondary indices.
	if _, err := s.db.Exec(`
		DROP INDEX IF EXISTS idx_entries_name;
		DROP INDEX IF EXISTS idx_entries_dir_ext_name;
		DROP INDEX IF EXISTS idx_entries_mtime;
		DROP INDEX IF EXISTS idx_entries_ext_name;
	`); err != nil {
		return errors.Wrap(err, "unable to drop secondary indices")
	}

	// Disable WAL autocheckpointing for the duration of the load.
	if _, err := s.db.Exec(`PRAGMA wal_autocheckpoint=0`); err != nil {
		return errors.Wrap(err, "unable to disable autocheckpoint")
	}

	// Done.
	return nil
}

// BulkInsert writes entries in batches, one transaction per batch, upserting
// on path. Each row is stamped with the provided run identifier.
func (s *Store) BulkInsert(entries []index.CompactEntry, runID int64, progress func(written int)) error {
	indexedAt := time.Now().Unix()
	for start := 0; start < len(entries); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := s.upsertBatch(entries[start:end], runID, indexedAt); err != nil {
			return err
		}
		if progress != nil {
			progress(end)
		}
	}
	return nil
}

// upsertBatch writes one batch of entries inside a single transaction.
func (s *Store) upsertBatch(entries []index.CompactEntry, runID, indexedAt int64) error {
	// Begin the transaction.
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "unable to begin batch transaction")
	}
	defer tx.Rollback()

	// Prepare the upsert statement.
	statement, err := tx.Prepare(`
		INSERT INTO entries(path, name, dir, is_dir, ext, mtime, size, indexed_at, run_id)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			dir = excluded.dir,
			is_dir = excluded.is_dir,
			ext = excluded.ext,
			mtime = excluded.mtime,
			size = excluded.size,
			indexed_at = excluded.indexed_at,
			run_id = excluded.run_id
	`)
	if err != nil {
		return errors.Wrap(err, "unable to prepare upsert statement")
	}
	defer statement.Close()

	// Write the rows.
	for i := range entries {
		entry := &entries[i]
		if _, err := statement.Exec(upsertArguments(entry, runID, indexedAt)...); err != nil {
			return errors.Wrap(err, "unable to upsert entry")
		}
	}

	// Commit.
	return errors.Wrap(tx.Commit(), "unable to commit batch transaction")
}

// upsertArguments computes the statement arguments for a single entry.
func upsertArguments(entry *index.CompactEntry, runID, indexedAt int64) []interface{} {
	var ext interface{}
	if !entry.IsDir() && entry.Ext != "" {
		ext = entry.Ext
	}
	var mtime interface{}
	if entry.MTimeValid() {
		mtime = entry.MTime
	}
	var size interface{}
	if entry.SizeValid() {
		size = entry.Size
	}
	isDir := 0
	if entry.IsDir() {
		isDir = 1
	}
	return []interface{}{
		entry.Path(), entry.Name, entry.Dir, isDir, ext, mtime, size, indexedAt, runID,
	}
}

// CleanupStaleRows deletes rows whose run identifier predates the current
// run, sweeping entries that vanished between full indexes.
func (s *Store) CleanupStaleRows(runID int64) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM entries WHERE run_id < ?`, runID)
	if err != nil {
		return 0, errors.Wrap(err, "unable to delete stale rows")
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// FinishBulkLoad restores steady state after a bulk load: stale rows are
// swept, the secondary indices are rebuilt (name first, so that queries
// recover early), autocheckpointing is restored, and the completion markers
// and cached counters are persisted. The onNameIndex callback runs between
// the name index and the remaining indices; the indexer uses it to free the
// memory index at the earliest safe moment.
func (s *Store) FinishBulkLoad(runID int64, onNameIndex func()) error {
	// Sweep rows from previous runs.
	if deleted, err := s.CleanupStaleRows(runID); err != nil {
		return err
	} else if deleted > 0 {
		s.logger.Debugf("swept %d stale rows", deleted)
	}

	// Restore the name index and notify.
	if err := s.createNameIndex(); err != nil {
		return err
	}
	if onNameIndex != nil {
		onNameIndex()
	}

	// Restore the remaining indices.
	if err := s.createRemainingIndices(); err != nil {
		return err
	}

	// Restore autocheckpointing and checkpoint the accumulated WAL.
	if _, err := s.db.Exec(`PRAGMA wal_autocheckpoint=1000`); err != nil {
		return errors.Wrap(err, "unable to restore autocheckpoint")
	}
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return errors.Wrap(err, "unable to checkpoint WAL")
	}

	// Persist completion markers and counters.
	if err := s.SetMetaInt(MetaLastRunID, runID); err != nil {
		return err
	}
	if err := s.SetMeta(MetaIndexComplete, "1"); err != nil {
		return err
	}
	if _, err := s.RefreshCachedCounts(time.Now().Unix()); err != nil {
		return err
	}

	// Invalidate any cached search results.
	s.cache.clear()

	// Done.
	return nil
}

// Upsert applies steady-state mutations for the provided entries. The
// current last run identifier is stamped so that the rows survive the next
// stale sweep only if they're still present then.
func (s *Store) Upsert(entries []index.CompactEntry) error {
	if len(entries) == 0 {
		return nil
	}
	runID, err := s.GetMetaInt(MetaLastRunID, 0)
	if err != nil {
		return err
	}
	if err := s.upsertBatch(entries, runID, time.Now().Unix()); err != nil {
		return err
	}
	s.cache.clear()
	return nil
}

// DeletePaths removes entries by exact path. For paths that describe
// directories, the entire subtree cascades via a prefix delete.
func (s *Store) DeletePaths(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	// Begin the transaction.
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "unable to begin delete transaction")
	}
	defer tx.Rollback()

	// Delete each path exactly, and cascade beneath it.
	exact, err := tx.Prepare(`DELETE FROM entries WHERE path = ?`)
	if err != nil {
		return errors.Wrap(err, "unable to prepare exact delete")
	}
	defer exact.Close()
	prefix, err := tx.Prepare(`DELETE FROM entries WHERE path LIKE ? ESCAPE '\'`)
	if err != nil {
		return errors.Wrap(err, "unable to prepare prefix delete")
	}
	defer prefix.Close()
	for _, path := range paths {
		if _, err := exact.Exec(path); err != nil {
			return errors.Wrap(err, "unable to delete path")
		}
		if _, err := prefix.Exec(escapeLikeLiteral(path) + `/%`); err != nil {
			return errors.Wrap(err, "unable to cascade delete")
		}
	}

	// Commit and invalidate cached results.
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "unable to commit delete transaction")
	}
	s.cache.clear()
	return nil
}

// PathExists indicates whether or not the catalog holds a row for the exact
// path.
func (s *Store) PathExists(path string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM entries WHERE path = ?`, path).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(err, "unable to probe path")
	}
	return true, nil
}

// ChildNames returns the base names of the catalog's direct children of a
// directory. The catchup scanner diffs these against the live directory
// listing.
func (s *Store) ChildNames(dir string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT name FROM entries WHERE dir = ?`, dir)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list children")
	}
	defer rows.Close()
	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "unable to scan child name")
		}
		names[name] = true
	}
	return names, errors.Wrap(rows.Err(), "unable to iterate children")
}

// escapeLikeLiteral escapes LIKE metacharacters in a literal string for use
// with ESCAPE '\'.
func escapeLikeLiteral(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `%`, `\%`)
	value = strings.ReplaceAll(value, `_`, `\_`)
	return value
}
