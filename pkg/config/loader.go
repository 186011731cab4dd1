// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	// Env files are optional; earlier files win because godotenv never overrides a set variable.
	for _, file := range []string{".env.local", ".env"} {
		_ = godotenv.Load(file)
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	return LoadFile(fmt.Sprintf("./configs/%s.yaml", env), env)
}

// LoadFile reads the given YAML file with environment overrides.
func LoadFile(path, env string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

// Watch re-decodes the configuration whenever the file changes and passes valid results to fn.
func Watch(v *viper.Viper, fn func(*Config)) {
	if v == nil || fn == nil {
		return
	}

	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("teller.initial_cash", 1000)
	v.SetDefault("teller.session_ttl", 2*time.Minute)
	v.SetDefault("teller.cleanup_interval", 30*time.Second)
	v.SetDefault("teller.lock_ttl", 5*time.Second)
	v.SetDefault("teller.metrics_interval", 10*time.Second)
	v.SetDefault("teller.idempotency_ttl", 24*time.Hour)
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("rate_limit.per_terminal.limit", 60)
	v.SetDefault("rate_limit.per_terminal.window", "1m")
	v.SetDefault("rate_limit.card_swipes.limit", 5)
	v.SetDefault("rate_limit.card_swipes.window", "1m")
	v.SetDefault("jobs.reconcile_cron", "*/5 * * * *")
	v.SetDefault("jobs.concurrency", 4)
}
