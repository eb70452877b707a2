// Package store persists the engine's tracking state: one row per content
// item ever seen, and a search-result cache keyed by query hash. Backed by
// SQLite with WAL and a busy timeout.
//
// Storage errors always propagate to the caller; nothing in this package
// degrades silently.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tracked_content (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	content_id     INTEGER NOT NULL UNIQUE,
	skip_flag      INTEGER NOT NULL DEFAULT 0,
	processed_flag INTEGER NOT NULL DEFAULT 0,
	last_updated   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracked_processed ON tracked_content(processed_flag);

CREATE TABLE IF NOT EXISTS search_cache (
	search_hash  TEXT PRIMARY KEY,
	search_query TEXT NOT NULL,
	results      TEXT NOT NULL,
	expires_at   INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER
);
`

// DefaultCacheTTL is how long cached search results stay valid.
const DefaultCacheTTL = time.Hour

// Store wraps the SQLite database holding tracking and cache state.
type Store struct {
	db       *sql.DB
	cacheTTL time.Duration
	now      func() time.Time
}

// Option customises Open behaviour.
type Option func(*Store)

// WithCacheTTL overrides the search-cache TTL. Default: DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) { s.cacheTTL = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the database at path, applies production pragmas
// and migrates the schema. Use ":memory:" for an ephemeral store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	s := &Store{
		db:       db,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// DB exposes the underlying handle so collaborators (settings) can share
// the same database file.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Drop removes the engine's tables. Called on deactivation; the settings
// table survives so the API key outlives an uninstall.
func (s *Store) Drop(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DROP TABLE IF EXISTS tracked_content; DROP TABLE IF EXISTS search_cache`)
	if err != nil {
		return fmt.Errorf("store: drop: %w", err)
	}
	return nil
}
