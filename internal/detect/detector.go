// Package detect implements content-hash change detection over the record
// store.
package detect

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookwatch/internal/catalog"
	"github.com/JakeFAU/bookwatch/internal/metrics"
)

// Detector upserts records and appends change events. Upserts to the same
// natural key are serialized through a per-key mutex so the read-compare-write
// sequence is atomic per key; distinct keys proceed fully in parallel.
type Detector struct {
	records   catalog.RecordStore
	changes   catalog.ChangeLog
	hasher    catalog.Hasher
	clock     catalog.Clock
	publisher catalog.Publisher
	topic     string
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options carries the optional collaborators of a Detector.
type Options struct {
	// Publisher, when set together with Topic, receives every emitted change
	// event. Publish failures are logged and never fail the upsert.
	Publisher catalog.Publisher
	Topic     string
	Logger    *zap.Logger
}

// New constructs a Detector.
func New(
	records catalog.RecordStore,
	changes catalog.ChangeLog,
	hasher catalog.Hasher,
	clock catalog.Clock,
	opts Options,
) *Detector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		records:   records,
		changes:   changes,
		hasher:    hasher,
		clock:     clock,
		publisher: opts.Publisher,
		topic:     opts.Topic,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Upsert applies rec against the store. It returns the emitted change event,
// or nil when the stored content hash already matches or when the hash moved
// without touching any tracked field.
func (d *Detector) Upsert(ctx context.Context, rec catalog.Record, snapshotURI string) (*catalog.ChangeEvent, error) {
	if rec.SourceURL == "" {
		return nil, fmt.Errorf("record has no source url")
	}

	hash, err := d.hasher.HashRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("hash record: %w", err)
	}

	lock := d.keyLock(rec.SourceURL)
	lock.Lock()
	defer lock.Unlock()

	existing, found, err := d.records.GetRecord(ctx, rec.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("lookup record: %w", err)
	}

	now := d.clock.Now()

	if !found {
		stored := catalog.StoredRecord{
			Record:      rec,
			ContentHash: hash,
			Status:      catalog.RecordStatusActive,
			FirstSeen:   now,
			LastUpdated: now,
			SnapshotURI: snapshotURI,
		}
		if err := d.records.PutRecord(ctx, stored); err != nil {
			return nil, fmt.Errorf("insert record: %w", err)
		}
		event := catalog.ChangeEvent{
			RecordKey:     rec.SourceURL,
			RecordName:    rec.Name,
			Type:          catalog.ChangeTypeNew,
			ChangedFields: map[string]catalog.FieldChange{},
			OccurredAt:    now,
		}
		if err := d.changes.AppendChange(ctx, event); err != nil {
			return nil, fmt.Errorf("append change: %w", err)
		}
		d.logger.Info("new record",
			zap.String("key", rec.SourceURL),
			zap.String("name", rec.Name),
		)
		d.emit(ctx, event)
		return &event, nil
	}

	if existing.ContentHash == hash {
		d.logger.Debug("record unchanged", zap.String("key", rec.SourceURL))
		return nil, nil
	}

	changed := diffTracked(existing.Record, rec)

	stored := catalog.StoredRecord{
		Record:      rec,
		ContentHash: hash,
		Status:      catalog.RecordStatusActive,
		FirstSeen:   existing.FirstSeen,
		LastUpdated: now,
		SnapshotURI: snapshotURI,
	}
	if stored.SnapshotURI == "" {
		stored.SnapshotURI = existing.SnapshotURI
	}
	if err := d.records.PutRecord(ctx, stored); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	// The hash covers fields that are not tracked for diffs, such as the
	// name. When only those moved the record is refreshed but no event is
	// logged or published.
	if len(changed) == 0 {
		d.logger.Debug("record refreshed without tracked changes",
			zap.String("key", rec.SourceURL),
		)
		return nil, nil
	}

	event := catalog.ChangeEvent{
		RecordKey:     rec.SourceURL,
		RecordName:    rec.Name,
		Type:          catalog.ChangeTypeUpdated,
		ChangedFields: changed,
		OccurredAt:    now,
	}
	if err := d.changes.AppendChange(ctx, event); err != nil {
		return nil, fmt.Errorf("append change: %w", err)
	}
	d.logger.Info("record updated",
		zap.String("key", rec.SourceURL),
		zap.String("name", rec.Name),
		zap.Int("changed_fields", len(changed)),
	)
	d.emit(ctx, event)
	return &event, nil
}

// diffTracked computes the old/new mapping over the tracked fields.
func diffTracked(old, new catalog.Record) map[string]catalog.FieldChange {
	changed := make(map[string]catalog.FieldChange)
	for _, field := range catalog.TrackedFields {
		oldVal := old.TrackedValue(field)
		newVal := new.TrackedValue(field)
		if oldVal != newVal {
			changed[field] = catalog.FieldChange{Old: oldVal, New: newVal}
		}
	}
	return changed
}

func (d *Detector) keyLock(key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[key] = lock
	}
	return lock
}

func (d *Detector) emit(ctx context.Context, event catalog.ChangeEvent) {
	metrics.ObserveChange(string(event.Type))
	if d.publisher == nil || d.topic == "" {
		return
	}
	if _, err := d.publisher.Publish(ctx, d.topic, event); err != nil {
		d.logger.Warn("change event publish failed",
			zap.String("key", event.RecordKey),
			zap.Error(err),
		)
	}
}
