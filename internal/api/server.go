// Package api exposes the HTTP interface for the catalog watch service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookwatch/internal/catalog"
	"github.com/JakeFAU/bookwatch/internal/config"
)

// CrawlRunner triggers crawl runs on behalf of API callers.
type CrawlRunner interface {
	Run(ctx context.Context, resume bool) (catalog.RunSummary, error)
	Active() bool
}

// Server wires HTTP handlers to the stores and the crawl runner.
type Server struct {
	router  chi.Router
	records catalog.RecordStore
	changes catalog.ChangeLog
	states  catalog.StateStore
	runner  CrawlRunner
	logger  *zap.Logger
	cfg     config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	records catalog.RecordStore,
	changes catalog.ChangeLog,
	states catalog.StateStore,
	runner CrawlRunner,
	clock catalog.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		records: records,
		changes: changes,
		states:  states,
		runner:  runner,
		logger:  logger,
		cfg:     cfg,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			limiter := newRateLimiter(
				cfg.Auth.RateLimitRequests,
				time.Duration(cfg.Auth.RatePeriodSeconds)*time.Second,
				clock,
			)
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey, limiter, logger))
		}

		r.Post("/crawl", s.startCrawl)
		r.Get("/crawl/state", s.getCrawlState)
		r.Get("/records", s.listRecords)
		r.Get("/records/{key}", s.getRecord)
		r.Get("/changes", s.listChanges)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.states.GetState(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "state store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startCrawlRequest struct {
	Resume bool `json:"resume"`
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if s.runner.Active() {
		writeError(w, http.StatusConflict, "a crawl is already running")
		return
	}

	// The run outlives the request.
	go func() {
		summary, err := s.runner.Run(context.Background(), req.Resume)
		if err != nil {
			if errors.Is(err, catalog.ErrRunActive) {
				s.logger.Warn("crawl trigger lost the start race")
				return
			}
			s.logger.Error("crawl run failed",
				zap.String("run_id", summary.RunID),
				zap.Error(err),
			)
			return
		}
		s.logger.Info("crawl run finished",
			zap.String("run_id", summary.RunID),
			zap.String("status", string(summary.Status)),
			zap.Int("total_processed", summary.TotalProcessed),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) getCrawlState(w http.ResponseWriter, r *http.Request) {
	state, err := s.states.GetState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read crawl state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type recordListResponse struct {
	Total   int                    `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
	Records []catalog.StoredRecord `json:"records"`
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	opts := catalog.ListOptions{
		Category: r.URL.Query().Get("category"),
		Limit:    queryInt(r, "limit", 20),
		Offset:   queryInt(r, "offset", 0),
	}
	if opts.Limit < 1 || opts.Limit > 100 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}
	if opts.Offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}

	total, err := s.records.CountRecords(r.Context(), opts.Category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count records")
		return
	}
	records, err := s.records.ListRecords(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []catalog.StoredRecord{}
	}
	writeJSON(w, http.StatusOK, recordListResponse{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		Records: records,
	})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record key")
		return
	}
	rec, found, err := s.records.GetRecord(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read record")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type changeListResponse struct {
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
	Changes []catalog.ChangeEvent `json:"changes"`
}

func (s *Server) listChanges(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 100 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}
	if offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}

	total, err := s.changes.CountChanges(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count changes")
		return
	}
	changes, err := s.changes.ListChanges(r.Context(), since, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list changes")
		return
	}
	if changes == nil {
		changes = []catalog.ChangeEvent{}
	}
	writeJSON(w, http.StatusOK, changeListResponse{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		Changes: changes,
	})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
