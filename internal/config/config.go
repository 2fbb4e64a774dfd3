// Package config exposes typed application configuration loaded from YAML,
// an optional .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // market timezone lookups must not depend on the host

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendClickhouse = "clickhouse"
)

// App captures process-wide runtime settings.
type App struct {
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
	HTTPAddr    string `yaml:"http_addr" validate:"required"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Storage selects the store implementations.
type Storage struct {
	Backend         string `yaml:"backend" validate:"oneof=memory postgres"`
	SnapshotBackend string `yaml:"snapshot_backend" validate:"omitempty,oneof=memory postgres clickhouse"`
	PostgresDSN     string `yaml:"postgres_dsn"`
	ClickhouseDSN   string `yaml:"clickhouse_dsn"`
	Migrate         bool   `yaml:"migrate"`
	LoadFixtures    bool   `yaml:"load_fixtures"` // memory backend only
}

// Redis configures the candidate cache. An empty Addr disables caching.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// Materializer configures scheduled snapshot runs.
type Materializer struct {
	Schedule    string        `yaml:"schedule"` // cron spec, empty disables scheduling
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	Parallelism int           `yaml:"parallelism" validate:"gte=1"`
	RunOnStart  bool          `yaml:"run_on_start"`
}

// Ranking configures the breakout candidate ranker.
type Ranking struct {
	LookbackSessions int    `yaml:"lookback_sessions" validate:"gt=0"`
	RecentSessions   int    `yaml:"recent_sessions" validate:"gt=0,ltefield=LookbackSessions"`
	SetupSessions    int    `yaml:"setup_sessions" validate:"gt=0,ltefield=LookbackSessions"`
	Timezone         string `yaml:"timezone" validate:"required"`
}

// Config collects every configuration leaf.
type Config struct {
	App          App          `yaml:"app"`
	Storage      Storage      `yaml:"storage"`
	Redis        Redis        `yaml:"redis"`
	Materializer Materializer `yaml:"materializer"`
	Ranking      Ranking      `yaml:"ranking"`
}

// Default returns the compiled-in defaults.
func Default() *Config {
	return &Config{
		App: App{
			LogLevel:    "info",
			HTTPAddr:    ":8080",
			MetricsAddr: ":9090",
		},
		Storage: Storage{
			Backend:      BackendMemory,
			LoadFixtures: true,
		},
		Redis: Redis{
			TTL: 5 * time.Minute,
		},
		Materializer: Materializer{
			Schedule:    "*/5 * * * *",
			Timeout:     10 * time.Minute,
			Parallelism: 4,
			RunOnStart:  true,
		},
		Ranking: Ranking{
			LookbackSessions: 14,
			RecentSessions:   3,
			SetupSessions:    7,
			Timezone:         "Europe/Warsaw",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then .env (never overriding set variables), then
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Storage.PostgresDSN, "POSTGRES_DSN")
	setString(&c.Storage.ClickhouseDSN, "CLICKHOUSE_DSN")
	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.SnapshotBackend, "SNAPSHOT_BACKEND")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.App.HTTPAddr, "HTTP_ADDR")
	setString(&c.App.MetricsAddr, "METRICS_ADDR")
	setString(&c.App.LogLevel, "LOG_LEVEL")
	setString(&c.Materializer.Schedule, "MATERIALIZE_SCHEDULE")
	setString(&c.Ranking.Timezone, "MARKET_TIMEZONE")

	if v := os.Getenv("MATERIALIZE_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MATERIALIZE_PARALLELISM: %w", err)
		}
		c.Materializer.Parallelism = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

// SnapshotStoreBackend returns the backend holding indicator snapshots.
func (c *Config) SnapshotStoreBackend() string {
	if c.Storage.SnapshotBackend != "" {
		return c.Storage.SnapshotBackend
	}
	return c.Storage.Backend
}

// Location returns the market timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Ranking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Ranking.Timezone, err)
	}
	return loc, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Storage.Backend == BackendPostgres && c.Storage.PostgresDSN == "" {
		return errors.New("invalid config: postgres backend requires POSTGRES_DSN")
	}
	switch c.SnapshotStoreBackend() {
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("invalid config: postgres snapshot backend requires POSTGRES_DSN")
		}
	case BackendClickhouse:
		if c.Storage.ClickhouseDSN == "" {
			return errors.New("invalid config: clickhouse snapshot backend requires CLICKHOUSE_DSN")
		}
	}
	if c.Storage.Backend == BackendMemory && c.SnapshotStoreBackend() != BackendMemory {
		return errors.New("invalid config: memory quotes cannot be combined with a persistent snapshot backend")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Materializer.Schedule != "" {
		if _, err := cron.ParseStandard(c.Materializer.Schedule); err != nil {
			return fmt.Errorf("invalid config: schedule %q: %w", c.Materializer.Schedule, err)
		}
	}
	return nil
}
