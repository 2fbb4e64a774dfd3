// Package main runs one snapshot materialization and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"accumulation-lab/internal/app"
	"accumulation-lab/internal/config"
	"accumulation-lab/internal/logging"
	"accumulation-lab/internal/snapshot"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	migrate := flag.Bool("migrate", false, "Apply schema migrations before running")
	full := flag.Bool("full", false, "Rescore all history instead of bars after the latest snapshot")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *migrate {
		cfg.Storage.Migrate = true
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
	ctx, cancel := context.WithTimeout(ctx, cfg.Materializer.Timeout)
	defer cancel()

	stores, cleanup, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("create stores", zap.Error(err))
	}
	defer cleanup()

	m := snapshot.New(snapshot.Options{
		QuoteStore:    stores.Quotes,
		SnapshotStore: stores.Snapshots,
		RunLogStore:   stores.RunLog,
		Parallelism:   cfg.Materializer.Parallelism,
		Full:          *full,
		Logger:        logger,
	})

	result, err := m.Run(ctx)
	if err != nil {
		// the failure is already in the run log
		cleanup()
		logger.Fatal("materialization failed", zap.Error(err))
	}

	fmt.Printf("Run %s: %s\n", result.RunID, result.Message)
}
