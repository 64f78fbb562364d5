package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookwatch/internal/catalog"
	"github.com/JakeFAU/bookwatch/internal/clock/system"
	"github.com/JakeFAU/bookwatch/internal/config"
	"github.com/JakeFAU/bookwatch/internal/storage/memory"
)

type fakeRunner struct {
	mu     sync.Mutex
	active bool
	runs   int
	done   chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, _ bool) (catalog.RunSummary, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return catalog.RunSummary{RunID: "run-1", Status: catalog.CrawlStatusCompleted}, nil
}

func (f *fakeRunner) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *memory.RecordStore, *memory.StateStore, *fakeRunner) {
	t.Helper()

	store := memory.NewRecordStore()
	states := memory.NewStateStore()
	runner := &fakeRunner{}
	srv := NewServer(store, store, states, runner, system.Clock{}, cfg, nil)
	return srv, store, states, runner
}

func seedRecord(t *testing.T, store *memory.RecordStore, key, name, category string) {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := store.PutRecord(context.Background(), catalog.StoredRecord{
		Record: catalog.Record{
			SourceURL: key,
			Name:      name,
			Category:  category,
		},
		ContentHash: "hash-" + name,
		Status:      catalog.RecordStatusActive,
		FirstSeen:   now,
		LastUpdated: now,
	})
	require.NoError(t, err)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, config.Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStartCrawlAccepted(t *testing.T) {
	t.Parallel()

	srv, _, _, runner := newTestServer(t, config.Config{})
	runner.done = make(chan struct{})

	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", strings.NewReader(`{"resume":true}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner was never invoked")
	}
}

func TestStartCrawlConflictWhileActive(t *testing.T) {
	t.Parallel()

	srv, _, _, runner := newTestServer(t, config.Config{})
	runner.active = true

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, 0, runner.runs)
}

func TestStartCrawlRejectsBadJSON(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCrawlState(t *testing.T) {
	t.Parallel()

	srv, _, states, _ := newTestServer(t, config.Config{})
	running := catalog.CrawlStatusRunning
	cursor := "https://site.test/page-3.html"
	total := 40
	require.NoError(t, states.UpdateState(context.Background(), catalog.StatePatch{
		Status:       &running,
		LastPageURL:  &cursor,
		TotalRecords: &total,
	}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crawl/state", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var state catalog.CrawlState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, catalog.CrawlStatusRunning, state.Status)
	assert.Equal(t, cursor, state.LastPageURL)
	assert.Equal(t, 40, state.TotalRecords)
}

func TestListRecordsPaginatesAndFilters(t *testing.T) {
	t.Parallel()

	srv, store, _, _ := newTestServer(t, config.Config{})
	seedRecord(t, store, "https://site.test/a.html", "Book A", "Poetry")
	seedRecord(t, store, "https://site.test/b.html", "Book B", "Travel")
	seedRecord(t, store, "https://site.test/c.html", "Book C", "Poetry")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/records?category=Poetry&limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp recordListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "Book A", resp.Records[0].Name)
}

func TestListRecordsRejectsBadLimit(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, config.Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/records?limit=9999", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRecordByEscapedKey(t *testing.T) {
	t.Parallel()

	srv, store, _, _ := newTestServer(t, config.Config{})
	key := "https://site.test/catalogue/a_1/index.html"
	seedRecord(t, store, key, "Book A", "Poetry")

	target := "/v1/records/" + url.PathEscape(key)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got catalog.StoredRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, key, got.SourceURL)
}

func TestGetRecordMissing(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, config.Config{})
	target := "/v1/records/" + url.PathEscape("https://site.test/none.html")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListChangesSinceFilter(t *testing.T) {
	t.Parallel()

	srv, store, _, _ := newTestServer(t, config.Config{})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, ts := range []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)} {
		require.NoError(t, store.AppendChange(context.Background(), catalog.ChangeEvent{
			RecordKey:  "https://site.test/a.html",
			RecordName: "Book A",
			Type:       catalog.ChangeTypeUpdated,
			OccurredAt: ts,
			ChangedFields: map[string]catalog.FieldChange{
				"rating": {Old: i, New: i + 1},
			},
		}))
	}

	since := base.Add(30 * time.Minute).Format(time.RFC3339)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/changes?since="+url.QueryEscape(since), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp changeListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Changes, 2)
	// Newest first.
	assert.True(t, resp.Changes[0].OccurredAt.After(resp.Changes[1].OccurredAt))
}

func TestListChangesRejectsBadSince(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, config.Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/changes?since=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sk_live_test"
	cfg.Auth.RateLimitRequests = 100
	cfg.Auth.RatePeriodSeconds = 3600
	srv, _, _, _ := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crawl/state", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/crawl/state", nil)
	req.Header.Set("Authorization", "Bearer sk_live_test")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))

	// Health stays open without a key.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitExceeded(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sk_live_test"
	cfg.Auth.RateLimitRequests = 2
	cfg.Auth.RatePeriodSeconds = 3600
	srv, _, _, _ := newTestServer(t, cfg)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/crawl/state", nil)
		req.Header.Set("X-API-Key", "sk_live_test")
		last = httptest.NewRecorder()
		srv.Handler().ServeHTTP(last, req)
	}

	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, last.Header().Get("X-RateLimit-Reset"))
}
