// Package traverse drives the paginated crawl: sequential page traversal,
// bounded fan-out per page, and per-page checkpointing.
package traverse

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookwatch/internal/catalog"
	"github.com/JakeFAU/bookwatch/internal/metrics"
)

// Config controls Runner behavior.
type Config struct {
	// StartURL is the first catalog page when no checkpoint applies.
	StartURL string

	// EmptyPageEndsCatalog treats an index page with zero record links as a
	// normal end-of-catalog instead of a run failure. The zero value keeps
	// the strict hard-failure behavior; the config layer enables it.
	EmptyPageEndsCatalog bool
}

// Runner executes crawl runs. It exclusively owns crawl state transitions;
// only one run may be active per Runner (single-runner assumption).
type Runner struct {
	fetcher   catalog.PageFetcher
	parser    catalog.Parser
	upserter  catalog.Upserter
	states    catalog.StateStore
	snapshots catalog.SnapshotStore
	clock     catalog.Clock
	logger    *zap.Logger
	cfg       Config

	active atomic.Bool
}

// New constructs a Runner. snapshots may be nil to disable raw-content
// archiving.
func New(
	fetcher catalog.PageFetcher,
	parser catalog.Parser,
	upserter catalog.Upserter,
	states catalog.StateStore,
	snapshots catalog.SnapshotStore,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		fetcher:   fetcher,
		parser:    parser,
		upserter:  upserter,
		states:    states,
		snapshots: snapshots,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// Active reports whether a run is currently executing.
func (r *Runner) Active() bool {
	return r.active.Load()
}

// Run executes one crawl. With resume true and a non-empty checkpointed
// cursor, traversal begins at that cursor; otherwise at the configured first
// page. The returned summary mirrors the terminal crawl state.
func (r *Runner) Run(ctx context.Context, resume bool) (catalog.RunSummary, error) {
	if !r.active.CompareAndSwap(false, true) {
		return catalog.RunSummary{}, catalog.ErrRunActive
	}
	defer r.active.Store(false)

	runID := uuid.NewString()
	started := time.Now()
	logger := r.logger.With(zap.String("run_id", runID))

	startURL, err := r.startingPoint(ctx, resume)
	if err != nil {
		return catalog.RunSummary{}, err
	}

	if err := r.states.UpdateState(ctx, patchStatus(catalog.CrawlStatusRunning, "")); err != nil {
		return catalog.RunSummary{}, fmt.Errorf("mark run started: %w", err)
	}
	logger.Info("crawl started",
		zap.String("start_url", startURL),
		zap.Bool("resume", resume),
	)

	total := 0
	current := startURL

	for current != "" {
		if ctx.Err() != nil {
			return r.interrupted(ctx, runID, total, started, logger)
		}

		index, err := r.fetchIndex(ctx, current)
		if err != nil {
			return r.failed(ctx, runID, total, started, err, logger)
		}
		if len(index.RecordURLs) == 0 {
			if r.cfg.EmptyPageEndsCatalog {
				logger.Warn("index page yielded no record links, ending catalog",
					zap.String("page", current),
				)
				break
			}
			err := fmt.Errorf("%w: %s", catalog.ErrEmptyIndexPage, current)
			return r.failed(ctx, runID, total, started, err, logger)
		}

		successes, persistErr := r.processChildren(ctx, index.RecordURLs, logger)
		if persistErr != nil {
			return r.failed(ctx, runID, total, started, persistErr, logger)
		}
		if ctx.Err() != nil {
			// Batch finished under cancellation: stop without advancing the
			// checkpoint past the last durable one.
			return r.interrupted(ctx, runID, total, started, logger)
		}

		total += successes
		metrics.ObserveIndexPage()
		logger.Info("catalog page processed",
			zap.String("page", current),
			zap.Int("children", len(index.RecordURLs)),
			zap.Int("succeeded", successes),
		)

		if err := r.checkpoint(ctx, current, total); err != nil {
			return r.failed(ctx, runID, total, started, err, logger)
		}

		current = index.NextPageURL
	}

	now := r.clock.Now()
	finished := catalog.CrawlStatusCompleted
	empty := ""
	if err := r.states.UpdateState(ctx, catalog.StatePatch{
		Status:       &finished,
		LastCrawlAt:  &now,
		TotalRecords: &total,
		ErrorMessage: &empty,
	}); err != nil {
		return r.failed(ctx, runID, total, started, fmt.Errorf("mark run completed: %w", err), logger)
	}

	metrics.ObserveCrawlRun(string(catalog.CrawlStatusCompleted), time.Since(started))
	logger.Info("crawl completed", zap.Int("total_processed", total))
	return catalog.RunSummary{
		RunID:          runID,
		Status:         catalog.CrawlStatusCompleted,
		TotalProcessed: total,
	}, nil
}

func (r *Runner) startingPoint(ctx context.Context, resume bool) (string, error) {
	if !resume {
		return r.cfg.StartURL, nil
	}
	state, err := r.states.GetState(ctx)
	if err != nil {
		return "", fmt.Errorf("read crawl state: %w", err)
	}
	if state.LastPageURL != "" {
		return state.LastPageURL, nil
	}
	return r.cfg.StartURL, nil
}

func (r *Runner) fetchIndex(ctx context.Context, pageURL string) (catalog.IndexPage, error) {
	body, err := r.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return catalog.IndexPage{}, fmt.Errorf("fetch index page %s: %w", pageURL, err)
	}
	index, err := r.parser.ParseIndexPage(body, pageURL)
	if err != nil {
		return catalog.IndexPage{}, fmt.Errorf("parse index page %s: %w", pageURL, err)
	}
	return index, nil
}

// processChildren fans out one fetch/parse/upsert pipeline per child URL.
// Fetch and parse failures are contained per child; a persistence failure is
// fatal and reported back.
func (r *Runner) processChildren(ctx context.Context, urls []string, logger *zap.Logger) (int, error) {
	var (
		wg         sync.WaitGroup
		successes  atomic.Int64
		mu         sync.Mutex
		persistErr error
	)

	for _, childURL := range urls {
		wg.Add(1)
		go func(childURL string) {
			defer wg.Done()
			ok, err := r.processChild(ctx, childURL, logger)
			if err != nil {
				mu.Lock()
				if persistErr == nil {
					persistErr = err
				}
				mu.Unlock()
				return
			}
			if ok {
				successes.Add(1)
			}
		}(childURL)
	}
	wg.Wait()

	return int(successes.Load()), persistErr
}

// processChild runs one child pipeline. The bool result reports contained
// success/failure; a non-nil error is a persistence failure that must abort
// the run.
func (r *Runner) processChild(ctx context.Context, childURL string, logger *zap.Logger) (bool, error) {
	body, err := r.fetcher.Fetch(ctx, childURL)
	if err != nil {
		switch {
		case catalog.IsPermanentFetch(err):
			logger.Warn("child gone, skipping", zap.String("url", childURL), zap.Error(err))
		case catalog.IsTransientFetch(err):
			logger.Error("child fetch exhausted retries", zap.String("url", childURL), zap.Error(err))
		case ctx.Err() != nil:
			// Cancellation is handled at the page level.
		default:
			logger.Error("child fetch failed", zap.String("url", childURL), zap.Error(err))
		}
		return false, nil
	}

	snapshotURI := r.storeSnapshot(ctx, childURL, body, logger)

	rec, err := r.parser.ParseRecordPage(body, childURL)
	if err != nil {
		logger.Warn("child parse failed, skipping", zap.String("url", childURL), zap.Error(err))
		return false, nil
	}

	if _, err := r.upserter.Upsert(ctx, rec, snapshotURI); err != nil {
		return false, fmt.Errorf("upsert %s: %w", childURL, err)
	}
	return true, nil
}

// storeSnapshot archives the raw page. Snapshot failures never sink a child;
// the record simply carries no snapshot pointer.
func (r *Runner) storeSnapshot(ctx context.Context, childURL string, body []byte, logger *zap.Logger) string {
	if r.snapshots == nil {
		return ""
	}
	uri, err := r.snapshots.Store(ctx, childURL, body)
	if err != nil {
		logger.Warn("snapshot store failed", zap.String("url", childURL), zap.Error(err))
		return ""
	}
	return uri
}

func (r *Runner) checkpoint(ctx context.Context, pageURL string, total int) error {
	now := r.clock.Now()
	running := catalog.CrawlStatusRunning
	if err := r.states.UpdateState(ctx, catalog.StatePatch{
		Status:       &running,
		LastPageURL:  &pageURL,
		LastCrawlAt:  &now,
		TotalRecords: &total,
	}); err != nil {
		return fmt.Errorf("checkpoint page %s: %w", pageURL, err)
	}
	return nil
}

func (r *Runner) failed(
	ctx context.Context,
	runID string,
	total int,
	started time.Time,
	cause error,
	logger *zap.Logger,
) (catalog.RunSummary, error) {
	logger.Error("crawl failed", zap.Error(cause))

	// Best-effort terminal state write; the original failure wins either way.
	msg := cause.Error()
	if err := r.states.UpdateState(context.WithoutCancel(ctx), patchStatus(catalog.CrawlStatusFailed, msg)); err != nil {
		logger.Error("mark run failed", zap.Error(err))
	}

	metrics.ObserveCrawlRun(string(catalog.CrawlStatusFailed), time.Since(started))
	return catalog.RunSummary{
		RunID:          runID,
		Status:         catalog.CrawlStatusFailed,
		TotalProcessed: total,
		ErrorMessage:   msg,
	}, cause
}

// interrupted ends a canceled run without touching the last durable
// checkpoint.
func (r *Runner) interrupted(
	ctx context.Context,
	runID string,
	total int,
	started time.Time,
	logger *zap.Logger,
) (catalog.RunSummary, error) {
	logger.Warn("crawl interrupted", zap.Error(ctx.Err()))
	metrics.ObserveCrawlRun("interrupted", time.Since(started))

	status := catalog.CrawlStatusRunning
	if state, err := r.states.GetState(context.WithoutCancel(ctx)); err == nil {
		status = state.Status
	}
	return catalog.RunSummary{
		RunID:          runID,
		Status:         status,
		TotalProcessed: total,
	}, ctx.Err()
}

func patchStatus(status catalog.CrawlStatus, msg string) catalog.StatePatch {
	return catalog.StatePatch{
		Status:       &status,
		ErrorMessage: &msg,
	}
}
