package catalog

import (
	"context"
	"time"
)

// Page is the raw result of one successful HTTP fetch.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher performs a single HTTP GET without retry semantics. Transport
// errors are returned as-is; non-2xx responses are returned as a Page so the
// caller owns classification.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// PageFetcher is the retrying, concurrency-bounded fetch contract consumed by
// the traversal controller.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Parser extracts structure from fetched pages. It is the swappable,
// per-site collaborator: ParseIndexPage yields child record URLs plus an
// optional next-page cursor, ParseRecordPage yields one structured record or
// a ParseError.
type Parser interface {
	ParseIndexPage(content []byte, baseURL string) (IndexPage, error)
	ParseRecordPage(content []byte, url string) (Record, error)
}

// RecordStore persists entity records keyed by natural key (source URL).
type RecordStore interface {
	GetRecord(ctx context.Context, key string) (StoredRecord, bool, error)
	PutRecord(ctx context.Context, rec StoredRecord) error
	ListRecords(ctx context.Context, opts ListOptions) ([]StoredRecord, error)
	CountRecords(ctx context.Context, category string) (int, error)
}

// ChangeLog is the append-only change event log.
type ChangeLog interface {
	AppendChange(ctx context.Context, event ChangeEvent) error
	ListChanges(ctx context.Context, since time.Time, limit, offset int) ([]ChangeEvent, error)
	CountChanges(ctx context.Context, since time.Time) (int, error)
}

// StateStore persists the singleton crawl checkpoint. GetState returns a
// default idle record when nothing has been persisted yet; UpdateState is a
// merge-upsert that overwrites only the patch's non-nil fields.
type StateStore interface {
	GetState(ctx context.Context) (CrawlState, error)
	UpdateState(ctx context.Context, patch StatePatch) error
}

// SnapshotStore archives raw page content and returns an opaque locator.
// Snapshots are a side artifact; change detection never consults them.
type SnapshotStore interface {
	Store(ctx context.Context, key string, content []byte) (string, error)
}

// Upserter is the change-detection contract consumed by the traversal
// controller. A nil event means the record was unchanged.
type Upserter interface {
	Upsert(ctx context.Context, rec Record, snapshotURI string) (*ChangeEvent, error)
}

// Publisher pushes change events to an external topic (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes the content hash over a record's canonical subset.
type Hasher interface {
	HashRecord(rec Record) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// ListOptions controls record listing pagination and filtering.
type ListOptions struct {
	Category string
	Limit    int
	Offset   int
}
