// Package main renders the breakout candidate report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"accumulation-lab/internal/app"
	"accumulation-lab/internal/config"
	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/logging"
	"accumulation-lab/internal/query"
	"accumulation-lab/internal/reporting"
	"accumulation-lab/internal/snapshot"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	asOfFlag := flag.String("as-of", "", "Report date YYYY-MM-DD (default: today in the market timezone)")
	format := flag.String("format", "md", "Output format: md or csv")
	out := flag.String("out", "", "Output file (default: stdout)")
	materialize := flag.Bool("materialize", false, "Run the materializer before reporting")
	flag.Parse()

	if *format != "md" && *format != "csv" {
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", *format)
		os.Exit(1)
	}

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

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("load timezone", zap.Error(err))
	}
	asOf := time.Now().In(loc)
	if *asOfFlag != "" {
		asOf, err = time.ParseInLocation(domain.DateLayout, *asOfFlag, loc)
		if err != nil {
			logger.Fatal("parse --as-of", zap.Error(err))
		}
	}

	rankCfg, err := app.RankingConfig(cfg)
	if err != nil {
		logger.Fatal("ranking config", zap.Error(err))
	}

	ctx := context.Background()
	stores, cleanup, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("create stores", zap.Error(err))
	}
	defer cleanup()

	if *materialize {
		m := snapshot.New(snapshot.Options{
			QuoteStore:    stores.Quotes,
			SnapshotStore: stores.Snapshots,
			RunLogStore:   stores.RunLog,
			Parallelism:   cfg.Materializer.Parallelism,
			Logger:        logger,
		})
		if _, err := m.Run(ctx); err != nil {
			cleanup()
			logger.Fatal("materialization failed", zap.Error(err))
		}
	}

	service := query.NewService(query.Options{
		QuoteStore:    stores.Quotes,
		SnapshotStore: stores.Snapshots,
		CalendarStore: stores.Calendar,
		RunLogStore:   stores.RunLog,
		Ranking:       rankCfg,
		Logger:        logger,
	})

	report, err := reporting.NewGenerator(service).Generate(ctx, asOf)
	if err != nil {
		cleanup()
		logger.Fatal("generate report", zap.Error(err))
	}

	var content string
	switch *format {
	case "csv":
		content = reporting.RenderCSV(report)
	default:
		content = reporting.RenderMarkdown(report)
	}

	if *out == "" {
		fmt.Print(content)
		return
	}
	if err := os.WriteFile(*out, []byte(content), 0644); err != nil {
		cleanup()
		logger.Fatal("write report", zap.String("file", *out), zap.Error(err))
	}
	fmt.Printf("Report written to %s (%d candidates)\n", *out, len(report.Candidates))
}
