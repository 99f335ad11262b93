package store

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/memnexus/memnex/internal/logging"
	"github.com/memnexus/memnex/internal/memerr"
)

// Store is memnex's embedded database: SQLite in WAL mode with an FTS5
// shadow over message content, grounded on the teacher's
// memorygraph.Manager connection setup (_journal_mode=WAL&_busy_timeout&
// _foreign_keys) generalized with a structural integrity probe on open.
type Store struct {
	db *sql.DB
}

// Open connects to (and, if necessary, creates) the database at path. An
// existing file is probed with PRAGMA quick_check before use; a new file
// skips the probe since there is nothing yet to corrupt.
func Open(path string) (*Store, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, memerr.Wrap(memerr.CodeDBConnectionFailed, "open database", err).WithContext(map[string]any{"path": path})
	}

	// An existing file that is not a SQLite database (or is malformed)
	// fails at connect or probe time rather than in the probe's result.
	corrupt := func(err error) bool {
		msg := err.Error()
		return existed && (strings.Contains(msg, "is not a database") || strings.Contains(msg, "malformed"))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		if corrupt(err) {
			return nil, memerr.Wrap(memerr.CodeDBCorrupted, "database is not a valid SQLite file", err).WithContext(map[string]any{"path": path})
		}
		return nil, memerr.Wrap(memerr.CodeDBConnectionFailed, "connect to database", err).WithContext(map[string]any{"path": path})
	}

	if existed {
		ok, err := quickCheck(db)
		if err != nil {
			db.Close()
			if corrupt(err) {
				return nil, memerr.Wrap(memerr.CodeDBCorrupted, "database is not a valid SQLite file", err).WithContext(map[string]any{"path": path})
			}
			return nil, memerr.Wrap(memerr.CodeDBConnectionFailed, "integrity probe", err).WithContext(map[string]any{"path": path})
		}
		if !ok {
			db.Close()
			return nil, memerr.New(memerr.CodeDBCorrupted, "database failed quick_check").WithContext(map[string]any{"path": path})
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, memerr.Wrap(memerr.CodeDBConnectionFailed, "initialize schema", err).WithContext(map[string]any{"path": path})
	}

	L_debug("store: opened", "path", path, "existed", existed)
	return &Store{db: db}, nil
}

// Close releases the underlying connection. The Store must not be used
// afterward.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw connection for repositories outside this package
// (search, link graph) that need direct SQL access to the same handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise. Used by the sync pipeline to wrap all writes for
// one session file in a single transaction (see the store's batching
// contract).
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return memerr.Wrap(memerr.CodeDBConnectionFailed, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			L_warn("store: rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return memerr.Wrap(memerr.CodeDBConnectionFailed, "commit transaction", err)
	}
	return nil
}

// quickCheck runs SQLite's fast structural probe. It returns false (not an
// error) when the database itself reports corruption.
func quickCheck(db *sql.DB) (bool, error) {
	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return false, err
	}
	return result == "ok", nil
}

// CheckpointWAL forces a WAL checkpoint, folding the write-ahead log back
// into the main database file. Called once at the end of a sync run.
func (s *Store) CheckpointWAL() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("wal_checkpoint: %w", err)
	}
	return nil
}

// QuickCheck runs SQLite's fast structural integrity probe. It returns
// within milliseconds on a healthy file and deterministically reports ok
// or corrupted; it does not catch every possible corruption (see
// FullCheck).
func (s *Store) QuickCheck() (bool, error) {
	return quickCheck(s.db)
}

// ClearAll deletes every row from every memnex-owned table, in child-to-
// parent order so foreign keys never block a delete. Used by `memnex
// import --clear` before a full-document restore.
func ClearAll(tx *sql.Tx) error {
	for _, table := range []string{"links", "tool_uses", "messages", "extraction_state", "sessions"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// FullCheck runs SQLite's complete integrity check, scanning every page
// and index.
func (s *Store) FullCheck() (bool, error) {
	rows, err := s.db.Query("PRAGMA integrity_check")
	if err != nil {
		return false, fmt.Errorf("integrity_check: %w", err)
	}
	defer rows.Close()

	ok := true
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return false, err
		}
		if line != "ok" {
			ok = false
		}
	}
	return ok, rows.Err()
}
