// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverNone     = "none"
)

// Config is the complete server configuration.
type Config struct {
	Addr      string
	LogLevel  string
	LogFormat string

	StoreDriver   string
	SQLitePath    string
	DatabaseURL   string
	RedisURL      string
	SnapshotTTL   time.Duration
	PruneInterval time.Duration

	FetchTimeout     time.Duration
	ExtractTimeout   time.Duration
	LLMTimeout       time.Duration
	FetchConcurrency int
	HostDelay        time.Duration
	UserAgent        string

	LLMBaseURL   string
	DefaultModel string

	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
}

var defaults = map[string]any{
	"addr":              "0.0.0.0:8080",
	"log_level":         "info",
	"log_format":        "json",
	"store_driver":      DriverSQLite,
	"sqlite_path":       "termread.db",
	"database_url":      "",
	"redis_url":         "",
	"snapshot_ttl":      "6h",
	"prune_interval":    "30m",
	"fetch_timeout":     "20s",
	"extract_timeout":   "30s",
	"llm_timeout":       "120s",
	"fetch_concurrency": 4,
	"host_delay":        "500ms",
	"user_agent":        "termread/1.0 (+https://github.com/bryan-buckman/termread)",
	"llm_base_url":      "https://openrouter.ai/api/v1",
	"default_model":     "openai/gpt-3.5-turbo",
	"rate_limit_rps":    10.0,
	"rate_limit_burst":  20,
	"max_body_bytes":    5 << 20,
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Addr:             v.GetString("addr"),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		StoreDriver:      strings.ToLower(v.GetString("store_driver")),
		SQLitePath:       v.GetString("sqlite_path"),
		DatabaseURL:      v.GetString("database_url"),
		RedisURL:         v.GetString("redis_url"),
		SnapshotTTL:      v.GetDuration("snapshot_ttl"),
		PruneInterval:    v.GetDuration("prune_interval"),
		FetchTimeout:     v.GetDuration("fetch_timeout"),
		ExtractTimeout:   v.GetDuration("extract_timeout"),
		LLMTimeout:       v.GetDuration("llm_timeout"),
		FetchConcurrency: v.GetInt("fetch_concurrency"),
		HostDelay:        v.GetDuration("host_delay"),
		UserAgent:        v.GetString("user_agent"),
		LLMBaseURL:       strings.TrimRight(v.GetString("llm_base_url"), "/"),
		DefaultModel:     v.GetString("default_model"),
		RateLimitRPS:     v.GetFloat64("rate_limit_rps"),
		RateLimitBurst:   v.GetInt("rate_limit_burst"),
		MaxBodyBytes:     v.GetInt64("max_body_bytes"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres store")
		}
	case DriverRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL is required for the redis store")
		}
	case DriverNone:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("config: FETCH_CONCURRENCY must be positive, got %d", c.FetchConcurrency)
	}
	for name, d := range map[string]time.Duration{
		"FETCH_TIMEOUT":   c.FetchTimeout,
		"EXTRACT_TIMEOUT": c.ExtractTimeout,
		"LLM_TIMEOUT":     c.LLMTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return errors.New("config: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.DefaultModel == "" {
		return errors.New("config: DEFAULT_MODEL must not be empty")
	}
	return nil
}
