package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlData := `
app:
  log_level: debug
  http_addr: ":8081"
storage:
  backend: postgres
  postgres_dsn: postgres://yaml
redis:
  ttl: 30s
materializer:
  schedule: "0 * * * *"
  timeout: 2m
  parallelism: 2
ranking:
  lookback_sessions: 10
  recent_sessions: 3
  setup_sessions: 5
  timezone: UTC
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o644))

	t.Setenv("POSTGRES_DSN", "postgres://env")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":8081", cfg.App.HTTPAddr)
	assert.Equal(t, ":9090", cfg.App.MetricsAddr, "unset keys keep defaults")
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://env", cfg.Storage.PostgresDSN, "environment overrides yaml")
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL)
	assert.Equal(t, 2*time.Minute, cfg.Materializer.Timeout)
	assert.Equal(t, 10, cfg.Ranking.LookbackSessions)
	assert.Equal(t, BackendPostgres, cfg.SnapshotStoreBackend())
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ParallelismEnv(t *testing.T) {
	t.Setenv("MATERIALIZE_PARALLELISM", "x")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }},
		{"clickhouse without dsn", func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Storage.PostgresDSN = "postgres://x"
			c.Storage.SnapshotBackend = BackendClickhouse
		}},
		{"memory quotes with persistent snapshots", func(c *Config) {
			c.Storage.SnapshotBackend = BackendPostgres
			c.Storage.PostgresDSN = "postgres://x"
		}},
		{"bad timezone", func(c *Config) { c.Ranking.Timezone = "Mars/Olympus" }},
		{"bad schedule", func(c *Config) { c.Materializer.Schedule = "every minute" }},
		{"zero lookback", func(c *Config) { c.Ranking.LookbackSessions = 0 }},
		{"recent longer than lookback", func(c *Config) { c.Ranking.RecentSessions = 20 }},
		{"zero parallelism", func(c *Config) { c.Materializer.Parallelism = 0 }},
		{"bad log level", func(c *Config) { c.App.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_EmptyScheduleAllowed(t *testing.T) {
	cfg := Default()
	cfg.Materializer.Schedule = ""
	assert.NoError(t, cfg.Validate())
}
