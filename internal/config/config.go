// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers a YAML file and environment variables on top of New().
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"runtime"
	"time"
)

// Store backends understood by the service.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RefreshIntervalSeconds is echoed to dashboard clients as the polling hint.
	RefreshIntervalSeconds int `koanf:"refresh_interval_seconds"`
	// DefaultWindowDays is how far back "from" defaults when omitted.
	DefaultWindowDays int `koanf:"default_window_days"`

	// StoreBackend is one of memory, postgres, redis.
	StoreBackend string `koanf:"store_backend"`
	// FixturePath optionally points at a YAML study fixture used to seed the store.
	// Empty means the embedded demo fixture.
	FixturePath string `koanf:"fixture_path"`

	PostgresDSN      string `koanf:"postgres_dsn"`
	PostgresMaxConns int    `koanf:"postgres_max_conns"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`

	// QueueSize bounds the in-memory rating submission queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the capacity of the event id deduper.
	DedupeSize int `koanf:"dedupe_size"`

	// RatingMin and RatingMax bound accepted rating values.
	RatingMin float64 `koanf:"rating_min"`
	RatingMax float64 `koanf:"rating_max"`

	// CORSAllowedOrigins lists origins allowed to call the API from a browser.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// RequestTimeoutSeconds caps handler execution time.
	RequestTimeoutSeconds int `koanf:"request_timeout_seconds"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		RefreshIntervalSeconds: 30,
		DefaultWindowDays:      30,
		StoreBackend:           BackendMemory,
		PostgresMaxConns:       10,
		RedisAddr:              "localhost:6379",
		RedisPrefix:            "studypulse:",
		QueueSize:              10_000,
		WorkerCount:            runtime.NumCPU() * 2,
		DedupeSize:             100_000,
		RatingMin:              1,
		RatingMax:              5,
		CORSAllowedOrigins:     []string{"*"},
		RequestTimeoutSeconds:  15,
	}
}

// RequestTimeout returns RequestTimeoutSeconds as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
