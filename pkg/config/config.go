package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the teller service.
type Config struct {
	AppEnv    string          `mapstructure:"app_env"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Teller    TellerConfig    `mapstructure:"teller" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	// File enables rotated file output in addition to stdout.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	DSN              string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate" validate:"gte=0,lte=1"`
}

// ServerConfig configures the keypad HTTP adapter.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// RedisConfig configures the session store.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db" validate:"gte=0"`
	PoolSize        int           `mapstructure:"pool_size" validate:"gte=0"`
	MinIdleConns    int           `mapstructure:"min_idle_conns" validate:"gte=0"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// DatabaseConfig configures the cash vault. The vault is disabled when Host is empty.
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user" validate:"required_with=Host"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name" validate:"required_with=Host"`
	SSLMode       string `mapstructure:"sslmode"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// TellerConfig holds the protocol settings of simulated terminals.
type TellerConfig struct {
	InitialCash     uint64        `mapstructure:"initial_cash"`
	SessionTTL      time.Duration `mapstructure:"session_ttl" validate:"required"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"required"`
	LockTTL         time.Duration `mapstructure:"lock_ttl" validate:"required"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
	// SnapshotTTL expires idle terminal snapshots in Redis; zero keeps them forever. Only safe with a
	// vault, which still holds the cash once a snapshot expires.
	SnapshotTTL    time.Duration `mapstructure:"snapshot_ttl"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// RateLimitConfig defines keypad rate limits.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	PerTerminal RateLimitRule `mapstructure:"per_terminal"`
	CardSwipes  RateLimitRule `mapstructure:"card_swipes"`
	Whitelist   []string      `mapstructure:"whitelist"`
}

// RateLimitRule is a request budget over a sliding window, e.g. 30 per "1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit" validate:"gte=0"`
	Window string `mapstructure:"window"`
}

// JobsConfig configures background vault reconciliation. Jobs only run with a vault.
type JobsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ReconcileCron string `mapstructure:"reconcile_cron"`
	Concurrency   int    `mapstructure:"concurrency" validate:"gte=0"`
}

// VaultEnabled reports whether a Postgres vault is configured.
func (c *Config) VaultEnabled() bool {
	return c.Database.Host != ""
}

// GetDBConnectionString returns PostgreSQL DSN based on config values.
func (c *Config) GetDBConnectionString() string {
	port := c.Database.Port
	if port == "" {
		port = "5432"
	}
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		sslMode,
	)
}
