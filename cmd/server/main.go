// Package main runs the accumulation service: scheduled snapshot
// materialization, the query API and Prometheus metrics.
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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"accumulation-lab/internal/api"
	"accumulation-lab/internal/app"
	"accumulation-lab/internal/cache"
	"accumulation-lab/internal/config"
	"accumulation-lab/internal/logging"
	"accumulation-lab/internal/observability"
	"accumulation-lab/internal/query"
	"accumulation-lab/internal/scheduler"
	"accumulation-lab/internal/snapshot"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.App.LogLevel, cfg.App.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	rankCfg, err := app.RankingConfig(cfg)
	if err != nil {
		return err
	}

	stores, cleanup, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	opts := query.Options{
		QuoteStore:    stores.Quotes,
		SnapshotStore: stores.Snapshots,
		CalendarStore: stores.Calendar,
		RunLogStore:   stores.RunLog,
		Ranking:       rankCfg,
		Logger:        logger,
	}
	if cfg.Redis.Addr != "" {
		candidateCache, err := cache.NewCandidateCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.TTL, logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer candidateCache.Close()
		opts.Cache = candidateCache
	}
	service := query.NewService(opts)

	materializer := snapshot.New(snapshot.Options{
		QuoteStore:    stores.Quotes,
		SnapshotStore: stores.Snapshots,
		RunLogStore:   stores.RunLog,
		Parallelism:   cfg.Materializer.Parallelism,
		OnSuccess: func(ctx context.Context, result *snapshot.RunResult) {
			if result.RowsAffected > 0 {
				service.InvalidateCandidates(ctx)
			}
		},
		Logger: logger,
	})

	sched := scheduler.New(materializer, scheduler.Options{
		Schedule: cfg.Materializer.Schedule,
		Timeout:  cfg.Materializer.Timeout,
		Location: loc,
		Logger:   logger,
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	apiServer := api.NewServer(api.Options{
		Querier:  service,
		Runner:   sched,
		Location: loc,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Materializer.RunOnStart {
		g.Go(func() error {
			if _, err := sched.RunNow(gctx); err != nil && !errors.Is(err, scheduler.ErrRunInProgress) {
				// a failed run is logged and recorded; the service keeps serving
				logger.Warn("initial materialization failed", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		return serve(gctx, "api", &http.Server{
			Addr:         cfg.App.HTTPAddr,
			Handler:      apiServer.Handler(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: cfg.Materializer.Timeout + 15*time.Second,
			IdleTimeout:  60 * time.Second,
		}, logger)
	})

	if cfg.App.MetricsAddr != "" {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			return serve(gctx, "metrics", &http.Server{
				Addr:              cfg.App.MetricsAddr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}, logger)
		})
	}

	logger.Info("server started",
		zap.String("http_addr", cfg.App.HTTPAddr),
		zap.String("metrics_addr", cfg.App.MetricsAddr),
		zap.String("backend", cfg.Storage.Backend),
		zap.String("snapshot_backend", cfg.SnapshotStoreBackend()),
		zap.String("schedule", cfg.Materializer.Schedule))

	return g.Wait()
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, name string, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("server", name), zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s server shutdown: %w", name, err)
	}
	return nil
}
