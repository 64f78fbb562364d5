// Package catalog defines core types shared across subsystems.
package catalog

import "time"

// RecordStatus represents the lifecycle state of a stored record.
type RecordStatus string

// Record status values persisted in the record store.
const (
	RecordStatusActive  RecordStatus = "active"
	RecordStatusDeleted RecordStatus = "deleted"
)

// Record is the parsed representation of one catalog item page. SourceURL is
// the natural key; the remaining fields are the canonical subset used for
// change detection, except ImageURL which is carried for display only.
type Record struct {
	SourceURL    string  `json:"source_url"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Category     string  `json:"category"`
	PriceInclTax float64 `json:"price_including_tax"`
	PriceExclTax float64 `json:"price_excluding_tax"`
	Availability string  `json:"availability"`
	ReviewCount  int     `json:"number_of_reviews"`
	Rating       int     `json:"rating"`
	ImageURL     string  `json:"image_url,omitempty"`
}

// StoredRecord is a Record plus the persistence metadata maintained by the
// change detector. ContentHash is a pure function of the canonical subset;
// metadata fields never participate in it.
type StoredRecord struct {
	Record
	ContentHash string       `json:"content_hash"`
	Status      RecordStatus `json:"status"`
	FirstSeen   time.Time    `json:"first_seen"`
	LastUpdated time.Time    `json:"last_updated"`
	SnapshotURI string       `json:"snapshot_uri,omitempty"`
}

// ChangeType classifies a change event.
type ChangeType string

// Change types recorded in the append-only change log.
const (
	ChangeTypeNew     ChangeType = "new"
	ChangeTypeUpdated ChangeType = "updated"
	ChangeTypeDeleted ChangeType = "deleted"
)

// FieldChange holds the before/after values of a single tracked field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// ChangeEvent is one append-only change log entry. A "new" event carries an
// empty ChangedFields map; an "updated" event carries only the fields whose
// values actually differ.
type ChangeEvent struct {
	RecordKey     string                 `json:"record_key"`
	RecordName    string                 `json:"record_name"`
	Type          ChangeType             `json:"change_type"`
	ChangedFields map[string]FieldChange `json:"changed_fields"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// CrawlStatus represents the lifecycle state of the singleton crawl state.
type CrawlStatus string

// Crawl status values.
const (
	CrawlStatusIdle      CrawlStatus = "idle"
	CrawlStatusRunning   CrawlStatus = "running"
	CrawlStatusCompleted CrawlStatus = "completed"
	CrawlStatusFailed    CrawlStatus = "failed"
)

// CrawlState is the singleton resumable checkpoint record. LastPageURL empty
// means no page has been checkpointed yet.
type CrawlState struct {
	Status       CrawlStatus `json:"status"`
	LastPageURL  string      `json:"last_page_url,omitempty"`
	LastCrawlAt  *time.Time  `json:"last_crawl_at,omitempty"`
	TotalRecords int         `json:"total_records"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// StatePatch is a merge-upsert against the crawl state singleton. Nil fields
// are left untouched; non-nil fields overwrite in place.
type StatePatch struct {
	Status       *CrawlStatus
	LastPageURL  *string
	LastCrawlAt  *time.Time
	TotalRecords *int
	ErrorMessage *string
}

// IndexPage is the parsed form of one catalog listing page. NextPageURL empty
// means the catalog ends here.
type IndexPage struct {
	RecordURLs  []string
	NextPageURL string
}

// RunSummary is returned to the caller of a crawl run (scheduler or API).
type RunSummary struct {
	RunID          string      `json:"run_id"`
	Status         CrawlStatus `json:"status"`
	TotalProcessed int         `json:"total_processed"`
	ErrorMessage   string      `json:"error_message,omitempty"`
}

// TrackedFields is the set of fields diffed for "updated" change events,
// keyed by wire name. It matches what the source system tracked: prices,
// availability, review count, rating and description, but not name or
// category.
var TrackedFields = []string{
	"price_including_tax",
	"price_excluding_tax",
	"availability",
	"number_of_reviews",
	"rating",
	"description",
}

// TrackedValue returns the value of a tracked field by wire name.
func (r Record) TrackedValue(field string) any {
	switch field {
	case "price_including_tax":
		return r.PriceInclTax
	case "price_excluding_tax":
		return r.PriceExclTax
	case "availability":
		return r.Availability
	case "number_of_reviews":
		return r.ReviewCount
	case "rating":
		return r.Rating
	case "description":
		return r.Description
	default:
		return nil
	}
}
