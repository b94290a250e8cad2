package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"reelforge/internal/config"
)

// SQLiteStore persists jobs in a single SQLite file. Writers serialize on
// the database lock; busy errors are retried with a short backoff.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var busyBackoff = []time.Duration{
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	80 * time.Millisecond,
}

func isSQLiteBusy(err error) bool {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// retryOnBusy runs op until it succeeds, fails with a non-busy error, or
// the backoff schedule runs out.
func retryOnBusy(ctx context.Context, op func() error) error {
	err := op()
	for _, delay := range busyBackoff {
		if !isSQLiteBusy(err) {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		err = op()
	}
	return err
}

// Open initializes or connects to the job database configured in cfg.
func Open(cfg *config.Config) (*SQLiteStore, error) {
	if cfg == nil {
		return nil, errors.New("open job store: config is required")
	}
	return OpenPath(cfg.Store.SQLitePath)
}

// OpenPath opens the SQLite job database at path, creating it if needed.
func OpenPath(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("open job store: empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them, and
	// immediate transactions take the write lock at BEGIN.
	query := url.Values{}
	query.Add("_pragma", "journal_mode(WAL)")
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", "busy_timeout(5000)")
	query.Set("_txlock", "immediate")
	dsn := "file:" + path + "?" + query.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
