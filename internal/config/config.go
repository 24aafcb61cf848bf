// Package config loads runtime configuration for the eventcal daemon from
// the environment (prefix EVENTCAL_), with an optional env file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Runtime is the resolved daemon configuration.
type Runtime struct {
	ListenAddr string

	// StoreBackend selects the event store: "memory" or "postgres".
	StoreBackend string
	PostgresDSN  string

	CacheEnabled  bool
	CacheTTL      time.Duration
	MaxIterations int

	LogLevel  slog.Level
	LogFormat string // "text" or "json"
}

// Load reads configuration from the environment.
func Load() (Runtime, error) {
	v := viper.New()
	v.SetEnvPrefix("EVENTCAL")
	v.AutomaticEnv()

	_ = v.BindEnv("listen_addr")
	_ = v.BindEnv("store_backend")
	_ = v.BindEnv("postgres_dsn")
	_ = v.BindEnv("cache_enabled")
	_ = v.BindEnv("cache_ttl_minutes")
	_ = v.BindEnv("max_iterations")
	_ = v.BindEnv("log_level")
	_ = v.BindEnv("log_format")

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("store_backend", "memory")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_ttl_minutes", 15)
	v.SetDefault("max_iterations", 100_000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	cfg := Runtime{
		ListenAddr:    v.GetString("listen_addr"),
		StoreBackend:  strings.ToLower(v.GetString("store_backend")),
		PostgresDSN:   v.GetString("postgres_dsn"),
		CacheEnabled:  v.GetBool("cache_enabled"),
		CacheTTL:      time.Duration(v.GetInt("cache_ttl_minutes")) * time.Minute,
		MaxIterations: v.GetInt("max_iterations"),
		LogFormat:     strings.ToLower(v.GetString("log_format")),
	}

	switch cfg.StoreBackend {
	case "memory":
	case "postgres":
		if cfg.PostgresDSN == "" {
			return Runtime{}, fmt.Errorf("postgres backend requires EVENTCAL_POSTGRES_DSN")
		}
	default:
		return Runtime{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	switch strings.ToLower(v.GetString("log_level")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return Runtime{}, fmt.Errorf("unknown log level %q", v.GetString("log_level"))
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Runtime{}, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	if cfg.MaxIterations < 1 {
		return Runtime{}, fmt.Errorf("max_iterations must be positive")
	}
	return cfg, nil
}
