package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 100_000, cfg.MaxIterations)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("EVENTCAL_LISTEN_ADDR", ":9999")
	t.Setenv("EVENTCAL_STORE_BACKEND", "postgres")
	t.Setenv("EVENTCAL_POSTGRES_DSN", "postgres://localhost/eventcal")
	t.Setenv("EVENTCAL_LOG_LEVEL", "debug")
	t.Setenv("EVENTCAL_LOG_FORMAT", "json")
	t.Setenv("EVENTCAL_CACHE_TTL_MINUTES", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "postgres://localhost/eventcal", cfg.PostgresDSN)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
}

func TestLoadRejections(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"postgres without dsn", "EVENTCAL_STORE_BACKEND", "postgres"},
		{"unknown backend", "EVENTCAL_STORE_BACKEND", "cassandra"},
		{"unknown log level", "EVENTCAL_LOG_LEVEL", "verbose"},
		{"unknown log format", "EVENTCAL_LOG_FORMAT", "xml"},
		{"non-positive iterations", "EVENTCAL_MAX_ITERATIONS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
