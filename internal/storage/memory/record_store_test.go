package memory

import (
	"context"
	"testing"
	"time"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

func storedRecord(key, category string) catalog.StoredRecord {
	return catalog.StoredRecord{
		Record: catalog.Record{
			SourceURL: key,
			Name:      "name-" + key,
			Category:  category,
		},
		ContentHash: "hash-" + key,
		Status:      catalog.RecordStatusActive,
	}
}

func TestRecordStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()

	_, found, err := store.GetRecord(ctx, "missing")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if found {
		t.Fatal("expected miss for unknown key")
	}

	rec := storedRecord("https://example.com/a", "Poetry")
	if err := store.PutRecord(ctx, rec); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}

	got, found, err := store.GetRecord(ctx, rec.SourceURL)
	if err != nil || !found {
		t.Fatalf("GetRecord() = %v, %v, %v", got, found, err)
	}
	if got.ContentHash != rec.ContentHash {
		t.Fatalf("unexpected hash %q", got.ContentHash)
	}

	// Overwrite under the same key must not create a second record.
	rec.ContentHash = "hash-2"
	if err := store.PutRecord(ctx, rec); err != nil {
		t.Fatalf("PutRecord() overwrite error = %v", err)
	}
	n, err := store.CountRecords(ctx, "")
	if err != nil || n != 1 {
		t.Fatalf("CountRecords() = %d, %v", n, err)
	}
}

func TestListRecordsPaginationAndFilter(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()
	for _, rec := range []catalog.StoredRecord{
		storedRecord("https://example.com/a", "Poetry"),
		storedRecord("https://example.com/b", "Fiction"),
		storedRecord("https://example.com/c", "Poetry"),
	} {
		if err := store.PutRecord(ctx, rec); err != nil {
			t.Fatalf("PutRecord() error = %v", err)
		}
	}

	poetry, err := store.ListRecords(ctx, catalog.ListOptions{Category: "Poetry"})
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(poetry) != 2 {
		t.Fatalf("expected 2 poetry records, got %d", len(poetry))
	}

	page, err := store.ListRecords(ctx, catalog.ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(page) != 1 || page[0].SourceURL != "https://example.com/b" {
		t.Fatalf("unexpected page %+v", page)
	}

	empty, err := store.ListRecords(ctx, catalog.ListOptions{Offset: 10})
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty page, got %v, %v", empty, err)
	}
}

func TestChangeLogOrderingAndSince(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	for i, key := range []string{"a", "b", "c"} {
		event := catalog.ChangeEvent{
			RecordKey:  "https://example.com/" + key,
			Type:       catalog.ChangeTypeNew,
			OccurredAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.AppendChange(ctx, event); err != nil {
			t.Fatalf("AppendChange() error = %v", err)
		}
	}

	all, err := store.ListChanges(ctx, time.Time{}, 0, 0)
	if err != nil {
		t.Fatalf("ListChanges() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if !all[0].OccurredAt.After(all[1].OccurredAt) {
		t.Fatal("expected newest-first ordering")
	}

	recent, err := store.ListChanges(ctx, base.Add(90*time.Minute), 0, 0)
	if err != nil {
		t.Fatalf("ListChanges(since) error = %v", err)
	}
	if len(recent) != 1 || recent[0].RecordKey != "https://example.com/c" {
		t.Fatalf("unexpected since filter result %+v", recent)
	}

	n, err := store.CountChanges(ctx, base)
	if err != nil || n != 3 {
		t.Fatalf("CountChanges() = %d, %v", n, err)
	}
}

func TestStateStoreMergeUpsert(t *testing.T) {
	t.Parallel()

	store := NewStateStore()
	ctx := context.Background()

	state, err := store.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Status != catalog.CrawlStatusIdle || state.LastPageURL != "" {
		t.Fatalf("expected default idle state, got %+v", state)
	}

	running := catalog.CrawlStatusRunning
	cursor := "https://example.com/page-5.html"
	total := 80
	if err := store.UpdateState(ctx, catalog.StatePatch{
		Status:       &running,
		LastPageURL:  &cursor,
		TotalRecords: &total,
	}); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	// A later partial patch must leave unrelated fields alone.
	completed := catalog.CrawlStatusCompleted
	if err := store.UpdateState(ctx, catalog.StatePatch{Status: &completed}); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	state, err = store.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Status != catalog.CrawlStatusCompleted {
		t.Fatalf("unexpected status %q", state.Status)
	}
	if state.LastPageURL != cursor || state.TotalRecords != total {
		t.Fatalf("partial patch clobbered fields: %+v", state)
	}
}
