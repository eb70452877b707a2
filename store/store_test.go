package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/thinkpixel/searchbridge/content"
)

func tempStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "searchbridge_test_*.db")
	if err != nil {
		t.Fatal(err)
	}
	path := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(path) })

	s, err := Open(path, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeRepo is an in-memory content.Repository.
type fakeRepo struct {
	items []content.Item
}

func (r *fakeRepo) Get(_ context.Context, id int64) (*content.Item, error) {
	for _, it := range r.items {
		if it.ID == id {
			cp := it
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) List(_ context.Context) ([]content.Item, error) {
	return r.items, nil
}

func TestTrackIdempotent(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	if err := s.Track(ctx, 42, content.KindPost); err != nil {
		t.Fatal(err)
	}
	if err := s.Track(ctx, 42, content.KindPost); err != nil {
		t.Fatal(err)
	}

	total, err := s.CountTotal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	unprocessed, _ := s.CountUnprocessed(ctx)
	if unprocessed != 1 {
		t.Errorf("unprocessed = %d, want 1", unprocessed)
	}
}

func TestTrackIgnoresRevisions(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	if err := s.Track(ctx, 1, content.KindRevision); err != nil {
		t.Fatal(err)
	}
	if err := s.Track(ctx, 2, "attachment"); err != nil {
		t.Fatal(err)
	}
	total, _ := s.CountTotal(ctx)
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}

func TestTrackResetsProcessed(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	if err := s.Track(ctx, 7, content.KindPage); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkProcessed(ctx, []int64{7}); err != nil {
		t.Fatal(err)
	}
	// Saving the item again re-queues it.
	if err := s.Track(ctx, 7, content.KindPage); err != nil {
		t.Fatal(err)
	}
	unprocessed, _ := s.CountUnprocessed(ctx)
	if unprocessed != 1 {
		t.Errorf("unprocessed = %d, want 1", unprocessed)
	}
}

func TestUntrack(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	s.Track(ctx, 1, content.KindPost)
	if err := s.Untrack(ctx, 1); err != nil {
		t.Fatal(err)
	}
	total, _ := s.CountTotal(ctx)
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	// Unknown id is a no-op.
	if err := s.Untrack(ctx, 99); err != nil {
		t.Fatal(err)
	}
}

func TestGetUnprocessedOrderAndLimit(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	for _, id := range []int64{30, 10, 20} {
		if err := s.Track(ctx, id, content.KindPost); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := s.GetUnprocessed(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	// Insertion order, not content-id order.
	if len(ids) != 2 || ids[0] != 30 || ids[1] != 10 {
		t.Errorf("ids = %v, want [30 10]", ids)
	}
}

func TestMarkProcessed(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	s.Track(ctx, 1, content.KindPost)
	s.Track(ctx, 2, content.KindPost)

	// Unknown ids are ignored.
	if err := s.MarkProcessed(ctx, []int64{1, 999}); err != nil {
		t.Fatal(err)
	}
	processed, _ := s.CountProcessed(ctx)
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}

	// Re-application is harmless.
	if err := s.MarkProcessed(ctx, []int64{1}); err != nil {
		t.Fatal(err)
	}
	processed, _ = s.CountProcessed(ctx)
	if processed != 1 {
		t.Errorf("processed = %d, want 1 after duplicate mark", processed)
	}

	if err := s.MarkProcessed(ctx, nil); err != nil {
		t.Fatal(err)
	}
}

func TestSkipForcesUnprocessed(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	s.Track(ctx, 5, content.KindPost)
	s.MarkProcessed(ctx, []int64{5})

	if err := s.UpdateSkipStatus(ctx, []int64{5}, true); err != nil {
		t.Fatal(err)
	}
	processed, _ := s.CountProcessed(ctx)
	if processed != 0 {
		t.Errorf("processed = %d, want 0 after skip", processed)
	}

	// Unskipping does not restore the processed flag.
	if err := s.UpdateSkipStatus(ctx, []int64{5}, false); err != nil {
		t.Fatal(err)
	}
	unprocessed, _ := s.CountUnprocessed(ctx)
	if unprocessed != 1 {
		t.Errorf("unprocessed = %d, want 1 after unskip", unprocessed)
	}
}

func TestSkipSurvivesRetrack(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	s.Track(ctx, 5, content.KindPost)
	s.UpdateSkipStatus(ctx, []int64{5}, true)
	s.Track(ctx, 5, content.KindPost)

	repo := &fakeRepo{items: []content.Item{{ID: 5, Title: "x", Kind: content.KindPost}}}
	page, err := s.SkipStatusByKeyword(ctx, repo, "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Results) != 1 || !page.Results[0].SkipFlag {
		t.Errorf("skip flag lost on re-track: %+v", page.Results)
	}
}

func TestSyncAll(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	repo := &fakeRepo{items: []content.Item{
		{ID: 1, Title: "a", Kind: content.KindPost},
		{ID: 2, Title: "b", Kind: content.KindPage},
	}}
	if err := s.SyncAll(ctx, repo); err != nil {
		t.Fatal(err)
	}
	total, _ := s.CountTotal(ctx)
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}

	// Re-running leaves existing state alone.
	s.MarkProcessed(ctx, []int64{1})
	if err := s.SyncAll(ctx, repo); err != nil {
		t.Fatal(err)
	}
	processed, _ := s.CountProcessed(ctx)
	if processed != 1 {
		t.Errorf("processed = %d, want 1 after re-sync", processed)
	}
}

func TestSkipStatusPagination(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	var items []content.Item
	for i := int64(1); i <= 12; i++ {
		items = append(items, content.Item{ID: i, Title: fmt.Sprintf("Page %d", i), Kind: content.KindPage})
		s.Track(ctx, i, content.KindPage)
	}
	repo := &fakeRepo{items: items}

	page, err := s.SkipStatusByKeyword(ctx, repo, "", 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if page.Count != 12 {
		t.Errorf("count = %d, want 12", page.Count)
	}
	if len(page.Results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(page.Results))
	}
	if page.Offset != 10 || page.Limit != 5 {
		t.Errorf("echo offset/limit = %d/%d", page.Offset, page.Limit)
	}
}

func TestSkipStatusKeyword(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	repo := &fakeRepo{items: []content.Item{
		{ID: 1, Title: "Getting Started", Kind: content.KindPost},
		{ID: 2, Title: "Advanced Topics", Kind: content.KindPost},
		{ID: 3, Title: "started quickly", Kind: content.KindPost},
	}}
	for _, it := range repo.items {
		s.Track(ctx, it.ID, it.Kind)
	}
	// A record whose content is gone upstream is dropped from the listing.
	s.Track(ctx, 4, content.KindPost)

	page, err := s.SkipStatusByKeyword(ctx, repo, "STARTED", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Count != 2 {
		t.Errorf("count = %d, want 2 (case-insensitive)", page.Count)
	}

	// limit <= 0 means no pagination.
	page, _ = s.SkipStatusByKeyword(ctx, repo, "", -1, 0)
	if len(page.Results) != 3 {
		t.Errorf("unlimited results = %d, want 3", len(page.Results))
	}
}

func TestCacheRoundTrip(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"results":[{"id":1,"score":0.9}]}`)
	if err := s.CacheSearch(ctx, "foo", payload); err != nil {
		t.Fatal(err)
	}

	got, err := s.CachedSearch(ctx, "foo")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("got %s, want %s", got, payload)
	}

	// A one-character difference is a different key.
	got, err = s.CachedSearch(ctx, "fop")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected miss for different query, got %s", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	s := tempStore(t, WithCacheTTL(time.Minute), WithClock(func() time.Time { return clock() }))
	ctx := context.Background()

	if err := s.CacheSearch(ctx, "foo", json.RawMessage(`[]`)); err != nil {
		t.Fatal(err)
	}

	clock = func() time.Time { return now.Add(2 * time.Minute) }
	got, err := s.CachedSearch(ctx, "foo")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected expiry, got %s", got)
	}

	// A write purges the expired row.
	if err := s.CacheSearch(ctx, "bar", json.RawMessage(`[]`)); err != nil {
		t.Fatal(err)
	}
	var rows int
	if err := s.DB().QueryRow(`SELECT COUNT(1) FROM search_cache`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("rows = %d, want 1 after purge", rows)
	}
}

func TestCacheNilResults(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	if err := s.CacheSearch(ctx, "empty", nil); err != nil {
		t.Fatal(err)
	}
	got, err := s.CachedSearch(ctx, "empty")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "[]" {
		t.Errorf("got %s, want []", got)
	}
}
