// Package scheduler runs crawls on a cron cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

// CrawlRunner is the subset of the traversal controller the scheduler needs.
type CrawlRunner interface {
	Run(ctx context.Context, resume bool) (catalog.RunSummary, error)
}

// Config controls the crawl cadence.
type Config struct {
	// CronSpec uses the standard five-field cron syntax.
	CronSpec string

	// Resume makes scheduled runs continue from the last checkpoint.
	Resume bool
}

// Scheduler triggers crawl runs from a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	runner CrawlRunner
	cfg    Config
	logger *zap.Logger
}

// New constructs a Scheduler. The schedule is validated at registration time.
func New(runner CrawlRunner, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	s := &Scheduler{
		cron:   c,
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
	if _, err := c.AddFunc(cfg.CronSpec, s.runOnce); err != nil {
		return nil, fmt.Errorf("register schedule %q: %w", cfg.CronSpec, err)
	}
	return s, nil
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started",
		zap.String("cron_spec", s.cfg.CronSpec),
		zap.Bool("resume", s.cfg.Resume),
	)
	s.cron.Start()
}

// Stop halts the schedule and waits for a firing job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runOnce() {
	summary, err := s.runner.Run(context.Background(), s.cfg.Resume)
	if err != nil {
		if errors.Is(err, catalog.ErrRunActive) {
			s.logger.Warn("scheduled crawl skipped, another run is active")
			return
		}
		s.logger.Error("scheduled crawl failed",
			zap.String("run_id", summary.RunID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("scheduled crawl finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Int("total_processed", summary.TotalProcessed),
	)
}
