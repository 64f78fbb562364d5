package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStoreWithPool(mock, "records", "changes")
	require.NoError(t, err)
	return store, mock
}

func sampleStored(now time.Time) catalog.StoredRecord {
	return catalog.StoredRecord{
		Record: catalog.Record{
			SourceURL:    "https://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html",
			Name:         "A Light in the Attic",
			Description:  "Poems.",
			Category:     "Poetry",
			PriceInclTax: 51.77,
			PriceExclTax: 51.77,
			Availability: "In stock (22 available)",
			ReviewCount:  0,
			Rating:       3,
			ImageURL:     "https://books.toscrape.com/media/cover.jpg",
		},
		ContentHash: "abc123",
		Status:      catalog.RecordStatusActive,
		FirstSeen:   now,
		LastUpdated: now,
		SnapshotURI: "gs://bucket/snap.html",
	}
}

func TestPutRecordUpserts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rec := sampleStored(now)

	mock.ExpectExec("INSERT INTO records").
		WithArgs(
			rec.SourceURL,
			rec.Name,
			rec.Description,
			rec.Category,
			rec.PriceInclTax,
			rec.PriceExclTax,
			rec.Availability,
			rec.ReviewCount,
			rec.Rating,
			rec.ImageURL,
			rec.ContentHash,
			rec.Status,
			rec.FirstSeen,
			rec.LastUpdated,
			rec.SnapshotURI,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.PutRecord(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutRecordRequiresKey(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	err := store.PutRecord(context.Background(), catalog.StoredRecord{})
	require.Error(t, err)
}

func TestGetRecordRoundTrip(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rec := sampleStored(now)

	cols := []string{
		"source_url", "name", "description", "category",
		"price_including_tax", "price_excluding_tax",
		"availability", "number_of_reviews", "rating", "image_url",
		"content_hash", "status", "first_seen", "last_updated", "snapshot_uri",
	}
	mock.ExpectQuery("SELECT(.|\\s)+FROM records WHERE source_url").
		WithArgs(rec.SourceURL).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			rec.SourceURL,
			rec.Name,
			rec.Description,
			rec.Category,
			rec.PriceInclTax,
			rec.PriceExclTax,
			rec.Availability,
			rec.ReviewCount,
			rec.Rating,
			rec.ImageURL,
			rec.ContentHash,
			rec.Status,
			rec.FirstSeen,
			rec.LastUpdated,
			rec.SnapshotURI,
		))

	got, found, err := store.GetRecord(context.Background(), rec.SourceURL)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rec, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecordMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT(.|\\s)+FROM records WHERE source_url").
		WithArgs("https://books.toscrape.com/nope.html").
		WillReturnRows(pgxmock.NewRows([]string{"source_url"}))

	_, found, err := store.GetRecord(context.Background(), "https://books.toscrape.com/nope.html")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendChangeSerializesFields(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	event := catalog.ChangeEvent{
		RecordKey:  "https://books.toscrape.com/catalogue/a_1/index.html",
		RecordName: "Book A",
		Type:       catalog.ChangeTypeUpdated,
		ChangedFields: map[string]catalog.FieldChange{
			"price_including_tax": {Old: 51.77, New: 49.99},
		},
		OccurredAt: now,
	}

	mock.ExpectExec("INSERT INTO changes").
		WithArgs(
			event.RecordKey,
			event.RecordName,
			event.Type,
			[]byte(`{"price_including_tax":{"old":51.77,"new":49.99}}`),
			event.OccurredAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.AppendChange(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListChangesDecodesFields(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	since := now.Add(-time.Hour)

	cols := []string{"record_key", "record_name", "change_type", "changed_fields", "occurred_at"}
	mock.ExpectQuery("SELECT(.|\\s)+FROM changes(.|\\s)+ORDER BY occurred_at DESC").
		WithArgs(since, 50, 0).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"https://books.toscrape.com/catalogue/a_1/index.html",
			"Book A",
			"updated",
			[]byte(`{"availability":{"old":"In stock","new":"Out of stock"}}`),
			now,
		))

	events, err := store.ListChanges(context.Background(), since, 50, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, catalog.ChangeTypeUpdated, events[0].Type)
	require.Equal(t, "In stock", events[0].ChangedFields["availability"].Old)
	require.Equal(t, "Out of stock", events[0].ChangedFields["availability"].New)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRecords(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT(.+) FROM records").
		WithArgs("Poetry").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := store.CountRecords(context.Background(), "Poetry")
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
