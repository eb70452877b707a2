// Package syncer coordinates the sync and search flows: it decides which
// content needs (re)processing, builds batches under the gateway's byte
// budget, and serves search queries cache-first. It holds no state of its
// own; everything lives in the injected store and client.
//
// Processing is at-least-once: two overlapping batch runs may select
// overlapping id sets, and re-submitting an already-processed id is
// harmless because marking processed is idempotent.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/thinkpixel/searchbridge/content"
	"github.com/thinkpixel/searchbridge/htmlmd"
	"github.com/thinkpixel/searchbridge/remote"
)

// DefaultMinQueryLength is the shortest query worth sending to the gateway.
const DefaultMinQueryLength = 2

// ContentStore is the slice of the store the orchestrator needs.
type ContentStore interface {
	GetUnprocessed(ctx context.Context, limit int) ([]int64, error)
	MarkProcessed(ctx context.Context, ids []int64) error
	CacheSearch(ctx context.Context, query string, results json.RawMessage) error
	CachedSearch(ctx context.Context, query string) (json.RawMessage, error)
}

// Gateway is the slice of the remote client the orchestrator needs.
type Gateway interface {
	MaxBatchSize(ctx context.Context) int
	SubmitBatch(ctx context.Context, items []remote.BatchItem) []int64
	Search(ctx context.Context, query string) json.RawMessage
	RemoveFromIndex(ctx context.Context, ids []int64) []int64
}

// Orchestrator wires store, gateway, repository and normalizer together.
type Orchestrator struct {
	store       ContentStore
	gateway     Gateway
	repo        content.Repository
	norm        *htmlmd.Normalizer
	logger      *slog.Logger
	minQueryLen int
}

// Option customises the orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMinQueryLength overrides the minimum query length for search.
func WithMinQueryLength(n int) Option {
	return func(o *Orchestrator) { o.minQueryLen = n }
}

// New creates an orchestrator.
func New(store ContentStore, gateway Gateway, repo content.Repository, norm *htmlmd.Normalizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		gateway:     gateway,
		repo:        repo,
		norm:        norm,
		logger:      slog.Default(),
		minQueryLen: DefaultMinQueryLength,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessBatch takes up to maxItems unprocessed ids, normalizes their
// content, submits as much as fits in the gateway's byte budget and marks
// the confirmed ids processed. Ids that did not fit stay queued for the
// next call; repeated calls drain the backlog.
//
// The first item of a batch is always included even when it alone exceeds
// the budget; nothing is ever silently dropped for being too large.
func (o *Orchestrator) ProcessBatch(ctx context.Context, maxItems int) ([]int64, error) {
	ids, err := o.store.GetUnprocessed(ctx, maxItems)
	if err != nil {
		return nil, fmt.Errorf("select unprocessed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	budget := o.gateway.MaxBatchSize(ctx)

	var batch []remote.BatchItem
	used := 0
	for _, id := range ids {
		item, err := o.repo.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load content %d: %w", id, err)
		}
		if item == nil {
			o.logger.Warn("tracked content no longer exists, skipping", "content_id", id)
			continue
		}

		text := o.norm.Convert(item.Title + "\n" + item.Body)
		size := len(text)
		if len(batch) > 0 && used+size > budget {
			break
		}
		batch = append(batch, remote.BatchItem{
			ID:   item.ID,
			Text: text,
			Extra: map[string]string{
				"title": item.Title,
				"type":  item.Kind,
			},
		})
		used += size
	}
	if len(batch) == 0 {
		return nil, nil
	}

	processed := o.gateway.SubmitBatch(ctx, batch)
	if len(processed) == 0 {
		o.logger.Warn("batch submission yielded no confirmed ids",
			"batch_size", len(batch), "bytes", used)
		return nil, nil
	}

	// A failed mark must surface: treating it as success would re-submit
	// forever without anyone noticing the store is broken.
	if err := o.store.MarkProcessed(ctx, processed); err != nil {
		return nil, fmt.Errorf("mark processed: %w", err)
	}

	o.logger.Info("batch processed",
		"submitted", len(batch), "confirmed", len(processed), "bytes", used, "budget", budget)
	return processed, nil
}

// Search serves query cache-first: a live cached result is returned without
// touching the gateway; on a miss the gateway is asked and the answer is
// cached under a fresh TTL, empty answers included. Queries shorter than
// the minimum length return nil without a remote call.
func (o *Orchestrator) Search(ctx context.Context, query string) (json.RawMessage, error) {
	if len([]rune(query)) < o.minQueryLen {
		return nil, nil
	}

	cached, err := o.store.CachedSearch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if cached != nil {
		return cached, nil
	}

	results := o.gateway.Search(ctx, query)
	if err := o.store.CacheSearch(ctx, query, results); err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}
	if results == nil {
		results = json.RawMessage("[]")
	}
	return results, nil
}

// RemoveSkipped forwards operator-skipped ids to the gateway's index
// removal. Best-effort; the returned ids are whatever the gateway echoed.
func (o *Orchestrator) RemoveSkipped(ctx context.Context, ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	removed := o.gateway.RemoveFromIndex(ctx, ids)
	o.logger.Info("requested index removal",
		"requested", len(ids), "confirmed", len(removed),
		"ids", idsAttr(ids))
	return removed
}

func idsAttr(ids []int64) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += strconv.FormatInt(id, 10)
	}
	return s
}
