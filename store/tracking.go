package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/thinkpixel/searchbridge/content"
)

// SkipStatus is one row of the operator-facing skip listing.
type SkipStatus struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	SkipFlag      bool      `json:"skip_flag"`
	ProcessedFlag bool      `json:"processed_flag"`
	LastUpdated   time.Time `json:"last_updated"`
}

// SkipStatusPage is a paginated skip listing. Count is the total number of
// matches before pagination.
type SkipStatusPage struct {
	Offset  int          `json:"offset"`
	Limit   int          `json:"limit"`
	Count   int          `json:"count"`
	Results []SkipStatus `json:"results"`
}

// Track registers a content item for indexing, resetting its processed flag
// so the next batch picks it up. Non-indexable kinds (revisions and
// anything unrecognized) are ignored. The skip flag, if an operator set
// one, survives re-tracking.
func (s *Store) Track(ctx context.Context, contentID int64, kind string) error {
	if !content.Indexable(kind) {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_content (content_id, skip_flag, processed_flag, last_updated)
		VALUES (?, 0, 0, ?)
		ON CONFLICT(content_id) DO UPDATE SET
			processed_flag = 0,
			last_updated = excluded.last_updated`,
		contentID, s.now().Unix())
	if err != nil {
		return fmt.Errorf("store: track %d: %w", contentID, err)
	}
	return nil
}

// Untrack removes the tracking record for a deleted content item.
func (s *Store) Untrack(ctx context.Context, contentID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tracked_content WHERE content_id = ?`, contentID)
	if err != nil {
		return fmt.Errorf("store: untrack %d: %w", contentID, err)
	}
	return nil
}

// SyncAll enrols every indexable item the repository knows about. Existing
// records are left untouched, so this is safe to repeat.
func (s *Store) SyncAll(ctx context.Context, repo content.Repository) error {
	items, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("store: sync: list content: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: sync: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO tracked_content (content_id, skip_flag, processed_flag, last_updated)
		VALUES (?, 0, 0, ?)`)
	if err != nil {
		return fmt.Errorf("store: sync: prepare: %w", err)
	}
	defer stmt.Close()

	now := s.now().Unix()
	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, now); err != nil {
			return fmt.Errorf("store: sync %d: %w", it.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: sync: commit: %w", err)
	}
	return nil
}

// GetUnprocessed returns up to limit content ids awaiting submission, in
// insertion order. The skip flag is deliberately not filtered here; skipped
// items are excluded from indexing through the operator listing and the
// removal path, and their processed flag stays false by design.
func (s *Store) GetUnprocessed(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_id FROM tracked_content
		WHERE processed_flag = 0
		ORDER BY id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: unprocessed: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: unprocessed scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkProcessed flags the given ids as submitted. Unknown ids are ignored.
// Safe under duplicate application, so two overlapping batch runs at most
// re-submit, never corrupt.
func (s *Store) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`UPDATE tracked_content SET processed_flag = 1, last_updated = ? WHERE content_id IN `, s.now().Unix(), ids)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: mark processed: %w", err)
	}
	return nil
}

// UpdateSkipStatus sets the operator skip flag on the given ids. Setting
// skip forces the processed flag back to false: if the item is later
// unskipped it must go through processing again.
func (s *Store) UpdateSkipStatus(ctx context.Context, ids []int64, skip bool) error {
	if len(ids) == 0 {
		return nil
	}
	stmt := `UPDATE tracked_content SET skip_flag = 1, processed_flag = 0, last_updated = ? WHERE content_id IN `
	if !skip {
		stmt = `UPDATE tracked_content SET skip_flag = 0, last_updated = ? WHERE content_id IN `
	}
	query, args := inClause(stmt, s.now().Unix(), ids)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: update skip: %w", err)
	}
	return nil
}

// SampleUnskipped returns one arbitrary non-skipped tracked id, used by the
// diagnostics endpoint. ok is false when nothing is tracked.
func (s *Store) SampleUnskipped(ctx context.Context) (id int64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT content_id FROM tracked_content WHERE skip_flag = 0 ORDER BY id LIMIT 1`)
	switch err := row.Scan(&id); {
	case err == nil:
		return id, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("store: sample: %w", err)
	}
}

// CountProcessed returns the number of records already submitted.
func (s *Store) CountProcessed(ctx context.Context) (int, error) {
	return s.countWhere(ctx, "processed_flag = 1")
}

// CountUnprocessed returns the number of records awaiting submission.
func (s *Store) CountUnprocessed(ctx context.Context) (int, error) {
	return s.countWhere(ctx, "processed_flag = 0")
}

// CountTotal returns the number of tracked records.
func (s *Store) CountTotal(ctx context.Context) (int, error) {
	return s.countWhere(ctx, "1 = 1")
}

func (s *Store) countWhere(ctx context.Context, cond string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM tracked_content WHERE `+cond).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

type trackedRow struct {
	contentID     int64
	skipFlag      bool
	processedFlag bool
	lastUpdated   int64
}

// SkipStatusByKeyword lists tracked items whose title contains keyword
// (case-insensitive; empty keyword matches everything), joined with titles
// from the repository. Records whose content no longer exists upstream are
// dropped from the listing. limit <= 0 disables pagination.
func (s *Store) SkipStatusByKeyword(ctx context.Context, repo content.Repository, keyword string, limit, offset int) (*SkipStatusPage, error) {
	items, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: skip listing: list content: %w", err)
	}
	titles := make(map[int64]string, len(items))
	for _, it := range items {
		titles[it.ID] = it.Title
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT content_id, skip_flag, processed_flag, last_updated
		FROM tracked_content ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: skip listing: %w", err)
	}
	defer rows.Close()

	needle := strings.ToLower(keyword)
	var matches []SkipStatus
	for rows.Next() {
		var r trackedRow
		if err := rows.Scan(&r.contentID, &r.skipFlag, &r.processedFlag, &r.lastUpdated); err != nil {
			return nil, fmt.Errorf("store: skip listing scan: %w", err)
		}
		title, exists := titles[r.contentID]
		if !exists {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(title), needle) {
			continue
		}
		matches = append(matches, SkipStatus{
			ID:            r.contentID,
			Title:         title,
			SkipFlag:      r.skipFlag,
			ProcessedFlag: r.processedFlag,
			LastUpdated:   time.Unix(r.lastUpdated, 0).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: skip listing: %w", err)
	}

	page := &SkipStatusPage{
		Offset:  offset,
		Limit:   limit,
		Count:   len(matches),
		Results: matches,
	}
	if limit > 0 {
		if offset >= len(matches) {
			page.Results = []SkipStatus{}
			return page, nil
		}
		end := offset + limit
		if end > len(matches) {
			end = len(matches)
		}
		page.Results = matches[offset:end]
	}
	if page.Results == nil {
		page.Results = []SkipStatus{}
	}
	return page, nil
}

// inClause expands "… IN " with a placeholder list. firstArg is bound before
// the ids (the last_updated timestamp in the update statements above).
func inClause(prefix string, firstArg any, ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, firstArg)
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, id := range sorted {
		placeholders[i] = "?"
		args = append(args, id)
	}
	return prefix + "(" + strings.Join(placeholders, ",") + ")", args
}
