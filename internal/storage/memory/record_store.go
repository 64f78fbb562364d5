// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

// RecordStore keeps records and change events in process memory. It
// implements catalog.RecordStore and catalog.ChangeLog.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]catalog.StoredRecord
	changes []catalog.ChangeEvent
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]catalog.StoredRecord),
	}
}

// GetRecord fetches a record by natural key.
func (s *RecordStore) GetRecord(_ context.Context, key string) (catalog.StoredRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok, nil
}

// PutRecord inserts or overwrites a record keyed by its source URL.
func (s *RecordStore) PutRecord(_ context.Context, rec catalog.StoredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.SourceURL] = rec
	return nil
}

// ListRecords returns records ordered by natural key, honoring pagination
// and the optional category filter.
func (s *RecordStore) ListRecords(_ context.Context, opts catalog.ListOptions) ([]catalog.StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.records))
	for key, rec := range s.records {
		if opts.Category != "" && rec.Category != opts.Category {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if opts.Offset >= len(keys) {
		return nil, nil
	}
	keys = keys[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(keys) {
		keys = keys[:opts.Limit]
	}

	out := make([]catalog.StoredRecord, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.records[key])
	}
	return out, nil
}

// CountRecords returns the number of stored records, optionally filtered by
// category.
func (s *RecordStore) CountRecords(_ context.Context, category string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if category == "" {
		return len(s.records), nil
	}
	n := 0
	for _, rec := range s.records {
		if rec.Category == category {
			n++
		}
	}
	return n, nil
}

// AppendChange appends one event to the change log.
func (s *RecordStore) AppendChange(_ context.Context, event catalog.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, event)
	return nil
}

// ListChanges returns events at or after since, newest first.
func (s *RecordStore) ListChanges(_ context.Context, since time.Time, limit, offset int) ([]catalog.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]catalog.ChangeEvent, 0, len(s.changes))
	for _, ev := range s.changes {
		if !ev.OccurredAt.Before(since) {
			filtered = append(filtered, ev)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].OccurredAt.After(filtered[j].OccurredAt)
	})

	if offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[offset:]
	if limit > 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}

	out := make([]catalog.ChangeEvent, len(filtered))
	copy(out, filtered)
	return out, nil
}

// CountChanges returns the number of events at or after since.
func (s *RecordStore) CountChanges(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ev := range s.changes {
		if !ev.OccurredAt.Before(since) {
			n++
		}
	}
	return n, nil
}
