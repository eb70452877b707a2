package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// queryHash is the cache key: SHA-256 of the raw query string. Identical
// queries always map to the same row; anything else practically never does.
func queryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// CacheSearch stores the result payload for query with the configured TTL,
// replacing any previous row for the same hash, then purges every expired
// row. Empty results are cached too, so a query that returned nothing does
// not hammer the remote service.
func (s *Store) CacheSearch(ctx context.Context, query string, results json.RawMessage) error {
	if results == nil {
		results = json.RawMessage("[]")
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO search_cache (search_hash, search_query, results, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		queryHash(query), query, string(results), now.Add(s.cacheTTL).Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("store: cache search: %w", err)
	}

	// Opportunistic purge keeps the table from accumulating dead rows.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM search_cache WHERE expires_at < ?`, now.Unix()); err != nil {
		return fmt.Errorf("store: cache purge: %w", err)
	}
	return nil
}

// CachedSearch returns the live cached payload for query, or nil when there
// is no unexpired entry.
func (s *Store) CachedSearch(ctx context.Context, query string) (json.RawMessage, error) {
	var results string
	err := s.db.QueryRowContext(ctx, `
		SELECT results FROM search_cache
		WHERE search_hash = ? AND expires_at > ?`,
		queryHash(query), s.now().Unix()).Scan(&results)
	switch {
	case err == nil:
		return json.RawMessage(results), nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	default:
		return nil, fmt.Errorf("store: cached search: %w", err)
	}
}
