package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

// StateStore persists the crawl-state singleton row.
type StateStore struct {
	pool dbConn
}

// NewStateStore constructs a state store sharing the record store's pool.
func NewStateStore(store *Store) (*StateStore, error) {
	if store == nil || store.pool == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &StateStore{pool: store.pool}, nil
}

// NewStateStoreWithPool constructs a state store from an existing pool
// (primarily for testing).
func NewStateStoreWithPool(pool dbConn) (*StateStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &StateStore{pool: pool}, nil
}

// GetState reads the singleton crawl state. An absent row reads as idle.
func (s *StateStore) GetState(ctx context.Context) (catalog.CrawlState, error) {
	const query = `
SELECT status, last_page_url, last_crawl_at, total_records, error_message
FROM crawl_state WHERE id = 1`

	var state catalog.CrawlState
	err := s.pool.QueryRow(ctx, query).Scan(
		&state.Status,
		&state.LastPageURL,
		&state.LastCrawlAt,
		&state.TotalRecords,
		&state.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.CrawlState{Status: catalog.CrawlStatusIdle}, nil
	}
	if err != nil {
		return catalog.CrawlState{}, fmt.Errorf("get crawl state: %w", err)
	}
	return state, nil
}

// UpdateState merges the patch into the singleton row. Absent patch fields
// keep their stored values.
func (s *StateStore) UpdateState(ctx context.Context, patch catalog.StatePatch) error {
	const query = `
INSERT INTO crawl_state (id, status, last_page_url, last_crawl_at, total_records, error_message)
VALUES (1, COALESCE($1, 'idle'), COALESCE($2, ''), $3, COALESCE($4, 0), COALESCE($5, ''))
ON CONFLICT (id) DO UPDATE SET
	status = COALESCE($1, crawl_state.status),
	last_page_url = COALESCE($2, crawl_state.last_page_url),
	last_crawl_at = COALESCE($3, crawl_state.last_crawl_at),
	total_records = COALESCE($4, crawl_state.total_records),
	error_message = COALESCE($5, crawl_state.error_message)`

	args := []any{
		patch.Status,
		patch.LastPageURL,
		patch.LastCrawlAt,
		patch.TotalRecords,
		patch.ErrorMessage,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update crawl state: %w", err)
	}
	return nil
}
