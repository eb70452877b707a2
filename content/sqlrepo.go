package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const repoSchema = `
CREATE TABLE IF NOT EXISTS content_items (
	id    INTEGER PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	body  TEXT NOT NULL DEFAULT '',
	kind  TEXT NOT NULL DEFAULT 'post'
);
`

// SQLRepository reads content from a shared SQLite table the host writes
// into. It is the standalone deployment's Repository; embedded hosts
// usually supply their own.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository returns a repository over db, creating its table when
// missing so a fresh deployment starts empty instead of erroring.
func NewSQLRepository(db *sql.DB) (*SQLRepository, error) {
	if _, err := db.Exec(repoSchema); err != nil {
		return nil, fmt.Errorf("content: init schema: %w", err)
	}
	return &SQLRepository{db: db}, nil
}

// Put inserts or replaces a content item. Exposed for hosts that feed the
// table through this package rather than writing SQL themselves.
func (r *SQLRepository) Put(ctx context.Context, item Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO content_items (id, title, body, kind)
		VALUES (?, ?, ?, ?)`, item.ID, item.Title, item.Body, item.Kind)
	if err != nil {
		return fmt.Errorf("content: put %d: %w", item.ID, err)
	}
	return nil
}

// Delete removes a content item.
func (r *SQLRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM content_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("content: delete %d: %w", id, err)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, id int64) (*Item, error) {
	var it Item
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, body, kind FROM content_items WHERE id = ?`, id).
		Scan(&it.ID, &it.Title, &it.Body, &it.Kind)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("content: get %d: %w", id, err)
	}
	return &it, nil
}

func (r *SQLRepository) List(ctx context.Context) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, body, kind FROM content_items
		WHERE kind IN (?, ?) ORDER BY id`, KindPost, KindPage)
	if err != nil {
		return nil, fmt.Errorf("content: list: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Title, &it.Body, &it.Kind); err != nil {
			return nil, fmt.Errorf("content: list scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content: list: %w", err)
	}
	return items, nil
}
