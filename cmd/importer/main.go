// Package main loads quotes and the session calendar from CSV files.
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
	"accumulation-lab/internal/importer"
	"accumulation-lab/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	quotesPath := flag.String("quotes", "", "CSV file of minute quotes")
	calendarPath := flag.String("calendar", "", "CSV file of session dates")
	batchSize := flag.Int("batch-size", importer.DefaultBatchSize, "Quotes inserted per transaction")
	migrate := flag.Bool("migrate", false, "Apply schema migrations before importing")
	flag.Parse()

	if *quotesPath == "" && *calendarPath == "" {
		fmt.Fprintln(os.Stderr, "Error: at least one of --quotes or --calendar is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *migrate {
		cfg.Storage.Migrate = true
	}
	// imported rows must not mix with demo data
	cfg.Storage.LoadFixtures = false
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

	if cfg.Storage.Backend == config.BackendMemory {
		logger.Warn("memory backend selected, imported rows are discarded on exit")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("create stores", zap.Error(err))
	}
	defer cleanup()

	im := importer.New(stores.Quotes, stores.Calendar, *batchSize, logger)

	if *calendarPath != "" {
		n, err := importFile(*calendarPath, func(f *os.File) (int, error) { return im.ImportCalendar(ctx, f) })
		if err != nil {
			cleanup()
			logger.Fatal("import calendar", zap.String("file", *calendarPath), zap.Error(err))
		}
		fmt.Printf("Imported %d sessions from %s\n", n, *calendarPath)
	}

	if *quotesPath != "" {
		n, err := importFile(*quotesPath, func(f *os.File) (int, error) { return im.ImportQuotes(ctx, f) })
		if err != nil {
			cleanup()
			logger.Fatal("import quotes", zap.String("file", *quotesPath), zap.Error(err))
		}
		fmt.Printf("Imported %d quotes from %s\n", n, *quotesPath)
	}
}

func importFile(path string, fn func(*os.File) (int, error)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return fn(f)
}
