// Package main wires together the bookwatch service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookwatch/internal/api"
	"github.com/JakeFAU/bookwatch/internal/catalog"
	"github.com/JakeFAU/bookwatch/internal/clock/system"
	"github.com/JakeFAU/bookwatch/internal/config"
	"github.com/JakeFAU/bookwatch/internal/detect"
	"github.com/JakeFAU/bookwatch/internal/fetch"
	"github.com/JakeFAU/bookwatch/internal/hash/canonical"
	"github.com/JakeFAU/bookwatch/internal/logging"
	"github.com/JakeFAU/bookwatch/internal/metrics"
	"github.com/JakeFAU/bookwatch/internal/parser"
	pubsubpublisher "github.com/JakeFAU/bookwatch/internal/publisher/pubsub"
	"github.com/JakeFAU/bookwatch/internal/scheduler"
	snapshotgcs "github.com/JakeFAU/bookwatch/internal/snapshot/gcs"
	snapshotlocal "github.com/JakeFAU/bookwatch/internal/snapshot/local"
	snapshotmemory "github.com/JakeFAU/bookwatch/internal/snapshot/memory"
	memorystorage "github.com/JakeFAU/bookwatch/internal/storage/memory"
	"github.com/JakeFAU/bookwatch/internal/storage/postgres"
	"github.com/JakeFAU/bookwatch/internal/traverse"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	crawlOnce := flag.Bool("crawl", false, "Run one crawl and exit instead of serving")
	resume := flag.Bool("resume", false, "Resume the crawl from the last checkpoint (with -crawl)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	var (
		records catalog.RecordStore
		changes catalog.ChangeLog
		states  catalog.StateStore
	)
	if cfg.DB.DSN != "" {
		store, err := postgres.NewStore(ctx, postgres.Config{
			DSN:          cfg.DB.DSN,
			RecordsTable: cfg.DB.RecordsTable,
			ChangesTable: cfg.DB.ChangesTable,
			MaxConns:     cfg.DB.MaxConns,
			MinConns:     cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal("schema init failed", zap.Error(err))
		}
		stateStore, err := postgres.NewStateStore(store)
		if err != nil {
			logger.Fatal("state store init failed", zap.Error(err))
		}
		records, changes, states = store, store, stateStore
		logger.Info("using postgres storage")
	} else {
		store := memorystorage.NewRecordStore()
		records, changes, states = store, store, memorystorage.NewStateStore()
		logger.Info("using in-memory storage")
	}

	snapshots, err := buildSnapshotStore(ctx, cfg, clock)
	if err != nil {
		logger.Fatal("snapshot store init failed", zap.Error(err))
	}

	detectOpts := detect.Options{
		Topic:  cfg.PubSub.TopicName,
		Logger: logger.Named("detect"),
	}
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		pub, err := pubsubpublisher.New(client)
		if err != nil {
			logger.Fatal("publisher init failed", zap.Error(err))
		}
		defer pub.Close()
		detectOpts.Publisher = pub
		logger.Info("publishing change events", zap.String("topic", cfg.PubSub.TopicName))
	}

	detector := detect.New(records, changes, canonical.New(), clock, detectOpts)

	collyFetcher := fetch.NewCollyFetcher(fetch.CollyConfig{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Crawler.RequestTimeout,
	})
	executor := fetch.NewExecutor(collyFetcher, fetch.Config{
		Concurrency: cfg.Crawler.Concurrency,
		MaxAttempts: cfg.Crawler.MaxAttempts,
		BaseDelay:   cfg.Crawler.RetryBaseDelay,
	}, logger.Named("fetch"))

	runner := traverse.New(
		executor,
		parser.New(),
		detector,
		states,
		snapshots,
		clock,
		traverse.Config{
			StartURL:             cfg.Crawler.StartURL,
			EmptyPageEndsCatalog: cfg.Crawler.EmptyPageEndsCatalog,
		},
		logger.Named("traverse"),
	)

	if *crawlOnce {
		summary, err := runner.Run(ctx, *resume)
		if err != nil {
			logger.Error("crawl failed",
				zap.String("run_id", summary.RunID),
				zap.Error(err),
			)
			os.Exit(1)
		}
		logger.Info("crawl finished",
			zap.String("run_id", summary.RunID),
			zap.Int("total_processed", summary.TotalProcessed),
		)
		return
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(runner, scheduler.Config{
			CronSpec: cfg.Scheduler.CronSpec,
			Resume:   cfg.Scheduler.Resume,
		}, logger.Named("scheduler"))
		if err != nil {
			logger.Fatal("scheduler init failed", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	apiServer := api.NewServer(records, changes, states, runner, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildSnapshotStore(ctx context.Context, cfg config.Config, clock *system.Clock) (catalog.SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case "local":
		return snapshotlocal.New(snapshotlocal.Config{
			BaseDir: cfg.Snapshot.BaseDir,
			Prefix:  cfg.Snapshot.Prefix,
		}, clock)
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return snapshotgcs.New(client, snapshotgcs.Config{
			Bucket: cfg.Snapshot.GCSBucket,
			Prefix: cfg.Snapshot.Prefix,
		}, clock)
	case "memory":
		return snapshotmemory.New(clock), nil
	case "", "disabled":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}
