package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

type countingRunner struct {
	runs    atomic.Int64
	resumes atomic.Int64
	fired   chan struct{}
}

func (r *countingRunner) Run(_ context.Context, resume bool) (catalog.RunSummary, error) {
	r.runs.Add(1)
	if resume {
		r.resumes.Add(1)
	}
	select {
	case r.fired <- struct{}{}:
	default:
	}
	return catalog.RunSummary{Status: catalog.CrawlStatusCompleted}, nil
}

func TestNewRejectsBadCronSpec(t *testing.T) {
	t.Parallel()

	_, err := New(&countingRunner{fired: make(chan struct{}, 1)}, Config{CronSpec: "not a schedule"}, nil)
	if err == nil {
		t.Fatal("expected an error for a bad cron spec")
	}
}

func TestNewRequiresRunner(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Config{CronSpec: "0 2 * * *"}, nil); err == nil {
		t.Fatal("expected an error for a nil runner")
	}
}

func TestSchedulerFiresRuns(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{fired: make(chan struct{}, 1)}
	// Every-minute spec is the tightest the five-field syntax allows, so
	// invoke the job body directly and reserve Start/Stop for lifecycle
	// coverage.
	s, err := New(runner, Config{CronSpec: "* * * * *", Resume: true}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s.runOnce()
	if got := runner.runs.Load(); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}
	if got := runner.resumes.Load(); got != 1 {
		t.Fatalf("expected resume to be passed through, got %d", got)
	}

	s.Start()
	s.Stop()
}
