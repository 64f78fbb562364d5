package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/bookwatch/internal/catalog"
	"github.com/JakeFAU/bookwatch/internal/metrics"
)

// Config controls Executor behavior.
type Config struct {
	// Concurrency is the maximum number of fetches holding a token at once.
	Concurrency int
	// MaxAttempts is the total attempt budget per URL, first try included.
	MaxAttempts int
	// BaseDelay scales the linear backoff: the wait before attempt n+1 is
	// BaseDelay * n.
	BaseDelay time.Duration
}

// Executor wraps a Fetcher with a counting semaphore, linear-backoff retry
// and error classification. It owns no persistent state; the semaphore is its
// only shared resource.
type Executor struct {
	fetcher     catalog.Fetcher
	sem         *semaphore.Weighted
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an Executor around the given low-level fetcher.
func NewExecutor(fetcher catalog.Fetcher, cfg Config, logger *zap.Logger) *Executor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		fetcher:     fetcher,
		sem:         semaphore.NewWeighted(int64(cfg.Concurrency)),
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Fetch retrieves url, retrying transient failures with linearly increasing
// delays. A not-found response is terminal and never retried; exhausting the
// attempt budget yields a TransientFetchError carrying the last cause.
func (e *Executor) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		body, err := e.attempt(ctx, url)
		if err == nil {
			metrics.ObserveFetch("success")
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if catalog.IsPermanentFetch(err) {
			metrics.ObserveFetch("permanent")
			e.logger.Warn("permanent fetch failure",
				zap.String("url", url),
				zap.Error(err),
			)
			return nil, err
		}

		lastErr = err
		e.logger.Warn("transient fetch failure",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.maxAttempts),
			zap.Error(err),
		)

		if attempt < e.maxAttempts {
			metrics.ObserveRetry()
			if err := e.sleep(ctx, e.baseDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}

	metrics.ObserveFetch("transient")
	return nil, &catalog.TransientFetchError{
		URL:      url,
		Attempts: e.maxAttempts,
		Cause:    lastErr,
	}
}

// attempt performs one bounded fetch. The token is held only for the network
// call, never across backoff sleeps.
func (e *Executor) attempt(ctx context.Context, url string) ([]byte, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	metrics.FetchStarted()
	page, err := e.fetcher.Fetch(ctx, url)
	metrics.FetchFinished()
	e.sem.Release(1)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("transport: %w", err)
	}

	switch {
	case page.StatusCode == http.StatusNotFound:
		return nil, &catalog.PermanentFetchError{URL: url, StatusCode: page.StatusCode}
	case page.StatusCode >= 200 && page.StatusCode < 300:
		return page.Body, nil
	default:
		return nil, fmt.Errorf("unexpected status %d", page.StatusCode)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
