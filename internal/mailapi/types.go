package mailapi

import (
	"context"
	"encoding/json"
	"time"
)

// ThreadRef is the lightweight reference returned by a list call. The list
// endpoint returns only stale/partial metadata; Revision is the server
// revision marker used to decide whether a cached detail is still current.
type ThreadRef struct {
	ID       string
	Revision string
	Snippet  string
}

// RefPage is one page of thread references.
type RefPage struct {
	Refs          []ThreadRef
	NextPageToken string
}

// ListParams selects which thread references to list.
type ListParams struct {
	// Query is a server-side search expression ("in:inbox", "from:bob").
	Query string

	// PageToken resumes a previous listing.
	PageToken string

	// Max bounds the number of references returned.
	Max int64
}

// Changes is the result of one changes-since call. Added preserves the
// server's discovery order and may contain duplicates; de-duplication is
// the consumer's concern. NewWatermark is the advanced watermark and is
// set even when Added is empty.
type Changes struct {
	Added        []string
	NewWatermark string
}

// ThreadListItem is the normalized read model of a conversation thread,
// decoupled from the raw transport payload. It is produced by ParseThread
// at read time; the cache stores only the raw payload.
type ThreadListItem struct {
	ID       string
	Revision string
	Subject  string
	From     string
	Snippet  string
	Date     time.Time
	Labels   []string
	Unread   bool
	Starred  bool
	Messages []ParsedMessage
}

// ParsedMessage is the normalized read model of a single message.
type ParsedMessage struct {
	ID            string
	ThreadID      string
	Subject       string
	From          string
	To            string
	Cc            string
	Snippet       string
	Date          time.Time
	Labels        []string
	Unread        bool
	Starred       bool
	HasAttachment bool
}

// Label is a folder/label known to the remote store.
type Label struct {
	ID   string
	Name string
}

// Profile is the account profile as the remote store sees it. Watermark is
// the change-sequence marker at fetch time; it is informational here, the
// authoritative seed value comes from CurrentWatermark.
type Profile struct {
	Email         string
	Watermark     string
	MessagesTotal int64
	ThreadsTotal  int64
}

// Remote is the narrow surface of the remote message-store API consumed by
// the sync core. Detail calls return the raw transport payload so callers
// can cache it verbatim and reparse at read time.
type Remote interface {
	// ListReferences returns one page of thread references with revision
	// markers. Never cached: it is the sole source of truth for what
	// exists now.
	ListReferences(ctx context.Context, params ListParams) (*RefPage, error)

	// GetThread fetches the full raw payload of one thread.
	GetThread(ctx context.Context, id string) (json.RawMessage, error)

	// GetMessage fetches the full raw payload of one message.
	GetMessage(ctx context.Context, id string) (json.RawMessage, error)

	// ListChangesSince returns message-added changes after watermark,
	// scoped to one label. Fails with a watermark-expired signature when
	// the watermark is older than the retained change history.
	ListChangesSince(ctx context.Context, watermark, labelID string) (*Changes, error)

	// CurrentWatermark returns the server's current change-sequence
	// marker, used for seeding and re-seeding.
	CurrentWatermark(ctx context.Context) (string, error)

	// ListLabels fetches the raw label metadata payload.
	ListLabels(ctx context.Context) (json.RawMessage, error)

	// GetProfile fetches the raw account profile payload.
	GetProfile(ctx context.Context) (json.RawMessage, error)
}
