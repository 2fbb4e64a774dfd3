// Package app wires configuration into stores and services shared by the
// commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"accumulation-lab/internal/config"
	"accumulation-lab/internal/fixtures"
	"accumulation-lab/internal/ranking"
	"accumulation-lab/internal/storage"
	chstore "accumulation-lab/internal/storage/clickhouse"
	"accumulation-lab/internal/storage/memory"
	"accumulation-lab/internal/storage/migrations"
	pgstore "accumulation-lab/internal/storage/postgres"
)

// Stores holds the storage implementations selected by configuration.
type Stores struct {
	Quotes    storage.QuoteStore
	Calendar  storage.SessionCalendarStore
	Snapshots storage.IndicatorSnapshotStore
	RunLog    storage.RunLogStore
}

// OpenStores creates the configured stores. Memory stores are seeded with
// fixtures when enabled. The returned cleanup closes any connections.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Storage.Backend == config.BackendMemory {
		stores := &Stores{
			Quotes:    memory.NewQuoteStore(),
			Calendar:  memory.NewSessionCalendarStore(),
			Snapshots: memory.NewIndicatorSnapshotStore(),
			RunLog:    memory.NewRunLogStore(),
		}
		if cfg.Storage.LoadFixtures {
			fc := fixtures.DefaultConfig()
			if loc, err := cfg.Location(); err == nil {
				fc.Location = loc
			}
			if err := fixtures.Load(ctx, fc, stores.Quotes, stores.Calendar); err != nil {
				return nil, nil, fmt.Errorf("load fixtures: %w", err)
			}
			logger.Info("loaded fixtures",
				zap.Int("instruments", fc.Instruments),
				zap.Int("sessions", fc.Sessions))
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.Storage.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	stores := &Stores{
		Quotes:    pgstore.NewQuoteStore(pool),
		Calendar:  pgstore.NewSessionCalendarStore(pool),
		Snapshots: pgstore.NewIndicatorSnapshotStore(pool),
		RunLog:    pgstore.NewRunLogStore(pool),
	}
	cleanup := func() { pool.Close() }

	switch cfg.SnapshotStoreBackend() {
	case config.BackendMemory:
		stores.Snapshots = memory.NewIndicatorSnapshotStore()
		return stores, cleanup, nil
	case config.BackendPostgres:
		return stores, cleanup, nil
	}

	var conn *chstore.Conn
	if cfg.Storage.Migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN, logger)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	stores.Snapshots = chstore.NewIndicatorSnapshotStore(conn)

	return stores, func() {
		conn.Close()
		pool.Close()
	}, nil
}

// RankingConfig derives the ranker configuration from cfg.
func RankingConfig(cfg *config.Config) (ranking.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return ranking.Config{}, err
	}
	rc := ranking.DefaultConfig()
	rc.LookbackSessions = cfg.Ranking.LookbackSessions
	rc.RecentSessions = cfg.Ranking.RecentSessions
	rc.SetupSessions = cfg.Ranking.SetupSessions
	rc.Location = loc
	return rc, nil
}
