// Package content defines the narrow view of the hosting platform's content
// that the sync engine needs. The engine never owns content items; it reads
// them through a Repository supplied by the host.
package content

import "context"

// Kinds the engine indexes. Revisions and anything else are ignored.
const (
	KindPost = "post"
	KindPage = "page"

	// KindRevision is produced by hosts that version their content.
	// Tracking events for revisions are no-ops.
	KindRevision = "revision"
)

// Item is a single content record as the host exposes it. Body is the
// rendered HTML the host would serve, opaque to the engine until it is
// normalized.
type Item struct {
	ID    int64
	Title string
	Body  string
	Kind  string
}

// Repository is the host-side accessor for content items.
type Repository interface {
	// Get returns the item with the given id, or nil if it no longer exists.
	Get(ctx context.Context, id int64) (*Item, error)

	// List returns all indexable items.
	List(ctx context.Context) ([]Item, error)
}

// Indexable reports whether items of the given kind participate in indexing.
func Indexable(kind string) bool {
	return kind == KindPost || kind == KindPage
}
