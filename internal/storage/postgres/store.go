// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	RecordsTable    string
	ChangesTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbConn interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists catalog records and change events in Postgres.
type Store struct {
	pool    dbConn
	records string
	changes string
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	records, changes, err := tableNames(cfg.RecordsTable, cfg.ChangesTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, records: records, changes: changes}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool dbConn, recordsTable, changesTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	records, changes, err := tableNames(recordsTable, changesTable)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, records: records, changes: changes}, nil
}

func tableNames(records, changes string) (string, string, error) {
	if records == "" {
		records = "records"
	}
	if changes == "" {
		changes = "changes"
	}
	if !validTableName.MatchString(records) {
		return "", "", fmt.Errorf("invalid table name %q", records)
	}
	if !validTableName.MatchString(changes) {
		return "", "", fmt.Errorf("invalid table name %q", changes)
	}
	return records, changes, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the backing tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	source_url TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	price_including_tax DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_excluding_tax DOUBLE PRECISION NOT NULL DEFAULT 0,
	availability TEXT NOT NULL DEFAULT '',
	number_of_reviews INTEGER NOT NULL DEFAULT 0,
	rating INTEGER NOT NULL DEFAULT 0,
	image_url TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	first_seen TIMESTAMPTZ NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	snapshot_uri TEXT NOT NULL DEFAULT ''
)`, s.records),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	record_key TEXT NOT NULL,
	record_name TEXT NOT NULL,
	change_type TEXT NOT NULL,
	changed_fields JSONB NOT NULL DEFAULT '{}',
	occurred_at TIMESTAMPTZ NOT NULL
)`, s.changes),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_occurred_at_idx ON %s (occurred_at DESC)`, s.changes, s.changes),
		`
CREATE TABLE IF NOT EXISTS crawl_state (
	id INTEGER PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'idle',
	last_page_url TEXT NOT NULL DEFAULT '',
	last_crawl_at TIMESTAMPTZ,
	total_records INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT ''
)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// GetRecord fetches a record by its source URL.
func (s *Store) GetRecord(ctx context.Context, key string) (catalog.StoredRecord, bool, error) {
	query := fmt.Sprintf(`
SELECT
	source_url, name, description, category,
	price_including_tax, price_excluding_tax,
	availability, number_of_reviews, rating, image_url,
	content_hash, status, first_seen, last_updated, snapshot_uri
FROM %s WHERE source_url = $1`, s.records)

	var rec catalog.StoredRecord
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&rec.SourceURL,
		&rec.Name,
		&rec.Description,
		&rec.Category,
		&rec.PriceInclTax,
		&rec.PriceExclTax,
		&rec.Availability,
		&rec.ReviewCount,
		&rec.Rating,
		&rec.ImageURL,
		&rec.ContentHash,
		&rec.Status,
		&rec.FirstSeen,
		&rec.LastUpdated,
		&rec.SnapshotURI,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.StoredRecord{}, false, nil
	}
	if err != nil {
		return catalog.StoredRecord{}, false, fmt.Errorf("get record: %w", err)
	}
	return rec, true, nil
}

// PutRecord writes a record, replacing any existing row with the same source URL.
func (s *Store) PutRecord(ctx context.Context, rec catalog.StoredRecord) error {
	if rec.SourceURL == "" {
		return fmt.Errorf("record source url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	source_url, name, description, category,
	price_including_tax, price_excluding_tax,
	availability, number_of_reviews, rating, image_url,
	content_hash, status, first_seen, last_updated, snapshot_uri
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (source_url) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	category = EXCLUDED.category,
	price_including_tax = EXCLUDED.price_including_tax,
	price_excluding_tax = EXCLUDED.price_excluding_tax,
	availability = EXCLUDED.availability,
	number_of_reviews = EXCLUDED.number_of_reviews,
	rating = EXCLUDED.rating,
	image_url = EXCLUDED.image_url,
	content_hash = EXCLUDED.content_hash,
	status = EXCLUDED.status,
	first_seen = EXCLUDED.first_seen,
	last_updated = EXCLUDED.last_updated,
	snapshot_uri = EXCLUDED.snapshot_uri`, s.records)

	args := []any{
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
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// ListRecords returns records ordered by source URL.
func (s *Store) ListRecords(ctx context.Context, opts catalog.ListOptions) ([]catalog.StoredRecord, error) {
	query := fmt.Sprintf(`
SELECT
	source_url, name, description, category,
	price_including_tax, price_excluding_tax,
	availability, number_of_reviews, rating, image_url,
	content_hash, status, first_seen, last_updated, snapshot_uri
FROM %s
WHERE ($1 = '' OR category = $1)
ORDER BY source_url
LIMIT $2 OFFSET $3`, s.records)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, query, opts.Category, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []catalog.StoredRecord
	for rows.Next() {
		var rec catalog.StoredRecord
		if err := rows.Scan(
			&rec.SourceURL,
			&rec.Name,
			&rec.Description,
			&rec.Category,
			&rec.PriceInclTax,
			&rec.PriceExclTax,
			&rec.Availability,
			&rec.ReviewCount,
			&rec.Rating,
			&rec.ImageURL,
			&rec.ContentHash,
			&rec.Status,
			&rec.FirstSeen,
			&rec.LastUpdated,
			&rec.SnapshotURI,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// CountRecords counts records, optionally restricted to one category.
func (s *Store) CountRecords(ctx context.Context, category string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE ($1 = '' OR category = $1)`, s.records)
	var n int
	if err := s.pool.QueryRow(ctx, query, category).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// AppendChange inserts a change event.
func (s *Store) AppendChange(ctx context.Context, event catalog.ChangeEvent) error {
	fields, err := json.Marshal(event.ChangedFields)
	if err != nil {
		return fmt.Errorf("marshal changed fields: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (record_key, record_name, change_type, changed_fields, occurred_at)
VALUES ($1,$2,$3,$4,$5)`, s.changes)

	args := []any{
		event.RecordKey,
		event.RecordName,
		event.Type,
		fields,
		event.OccurredAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert change: %w", err)
	}
	return nil
}

// ListChanges returns events at or after since, newest first.
func (s *Store) ListChanges(ctx context.Context, since time.Time, limit, offset int) ([]catalog.ChangeEvent, error) {
	query := fmt.Sprintf(`
SELECT record_key, record_name, change_type, changed_fields, occurred_at
FROM %s
WHERE occurred_at >= $1
ORDER BY occurred_at DESC
LIMIT $2 OFFSET $3`, s.changes)

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, query, since, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var out []catalog.ChangeEvent
	for rows.Next() {
		var (
			ev     catalog.ChangeEvent
			fields []byte
		)
		if err := rows.Scan(&ev.RecordKey, &ev.RecordName, &ev.Type, &fields, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &ev.ChangedFields); err != nil {
				return nil, fmt.Errorf("unmarshal changed fields: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return out, nil
}

// CountChanges counts events at or after since.
func (s *Store) CountChanges(ctx context.Context, since time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE occurred_at >= $1`, s.changes)
	var n int
	if err := s.pool.QueryRow(ctx, query, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count changes: %w", err)
	}
	return n, nil
}
