// Package config holds the snapshot tool's configuration surface.
//
// Values are layered: Default, then an optional YAML file (with ${VAR}
// expansion), then PM_* environment variables (a .env file in the working
// directory is loaded first if present). Command-line flags are applied
// last by the caller.
package config

import (
	"time"

	"github.com/Sternrassler/pm-snapshot/pkg/client"
	"github.com/Sternrassler/pm-snapshot/pkg/clob"
)

// Config is the full configuration.
type Config struct {
	Gamma  GammaConfig  `yaml:"gamma"`
	CLOB   CLOBConfig   `yaml:"clob"`
	HTTP   HTTPConfig   `yaml:"http"`
	Redis  RedisConfig  `yaml:"redis"`
	Output OutputConfig `yaml:"output"`
	Log    LogConfig    `yaml:"log"`

	// Timeout bounds a whole run. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`
}

// GammaConfig configures the metadata service.
type GammaConfig struct {
	BaseURL    string  `yaml:"base_url"`
	RateLimit  float64 `yaml:"rate_limit"` // requests per second
	PageSize   int     `yaml:"page_size"`
	MaxPages   int     `yaml:"max_pages"`
	MaxRecords int     `yaml:"max_records"` // 0 means no cap
	ActiveOnly bool    `yaml:"active_only"`
	TagID      string  `yaml:"tag_id"`
}

// CLOBConfig configures the pricing service.
type CLOBConfig struct {
	BaseURL     string  `yaml:"base_url"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second
	BatchSize   int     `yaml:"batch_size"`
	Concurrency int     `yaml:"concurrency"`
}

// HTTPConfig configures timeouts and retries for both services.
type HTTPConfig struct {
	UserAgent      string        `yaml:"user_agent"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Jitter         float64       `yaml:"jitter"`
}

// RedisConfig enables the shared cooldown tracker and page cache.
// An empty Addr disables both.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// OutputConfig controls what a run writes.
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	Category    string `yaml:"category"`
	DryRun      bool   `yaml:"dry_run"`
	MetricsFile string `yaml:"metrics_file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns conservative defaults.
func Default() *Config {
	retry := client.DefaultRetryConfig()

	return &Config{
		Gamma: GammaConfig{
			BaseURL:   "https://gamma-api.polymarket.com",
			RateLimit: 2,
			PageSize:  500,
			MaxPages:  500,
		},
		CLOB: CLOBConfig{
			BaseURL:     "https://clob.polymarket.com",
			RateLimit:   1,
			BatchSize:   clob.MaxBatchSize,
			Concurrency: 5,
		},
		HTTP: HTTPConfig{
			UserAgent:      "pm-snapshot/1.0",
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    9 * time.Second,
			MaxAttempts:    retry.MaxAttempts,
			InitialBackoff: retry.InitialBackoff,
			MaxBackoff:     retry.MaxBackoff,
			Jitter:         retry.Jitter,
		},
		Redis: RedisConfig{
			CacheTTL: 15 * time.Minute,
		},
		Output: OutputConfig{
			Dir: "data",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ClientConfig returns the HTTP client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.HTTP.UserAgent)
	cfg.ConnectTimeout = c.HTTP.ConnectTimeout
	cfg.ReadTimeout = c.HTTP.ReadTimeout
	cfg.Retry.MaxAttempts = c.HTTP.MaxAttempts
	cfg.Retry.InitialBackoff = c.HTTP.InitialBackoff
	cfg.Retry.MaxBackoff = c.HTTP.MaxBackoff
	cfg.Retry.Jitter = c.HTTP.Jitter
	return cfg
}
