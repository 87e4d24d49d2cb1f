package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment. It does not validate: callers layer
// command-line flags on top and then call Validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from PM_* variables. Unparseable values are
// errors rather than silently ignored.
func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PM_GAMMA_BASE_URL", &c.Gamma.BaseURL)
	float("PM_GAMMA_RPS", &c.Gamma.RateLimit)
	integer("PM_PAGE_SIZE", &c.Gamma.PageSize)
	integer("PM_MAX_PAGES", &c.Gamma.MaxPages)
	integer("PM_MAX_RECORDS", &c.Gamma.MaxRecords)
	boolean("PM_ACTIVE_ONLY", &c.Gamma.ActiveOnly)
	str("PM_TAG_ID", &c.Gamma.TagID)

	str("PM_CLOB_BASE_URL", &c.CLOB.BaseURL)
	float("PM_CLOB_RPS", &c.CLOB.RateLimit)
	integer("PM_BATCH_SIZE", &c.CLOB.BatchSize)
	integer("PM_CONCURRENCY", &c.CLOB.Concurrency)

	str("PM_USER_AGENT", &c.HTTP.UserAgent)
	duration("PM_CONNECT_TIMEOUT", &c.HTTP.ConnectTimeout)
	duration("PM_READ_TIMEOUT", &c.HTTP.ReadTimeout)
	integer("PM_MAX_ATTEMPTS", &c.HTTP.MaxAttempts)
	duration("PM_INITIAL_BACKOFF", &c.HTTP.InitialBackoff)
	duration("PM_MAX_BACKOFF", &c.HTTP.MaxBackoff)
	float("PM_JITTER", &c.HTTP.Jitter)

	str("PM_REDIS_ADDR", &c.Redis.Addr)
	str("PM_REDIS_PASSWORD", &c.Redis.Password)
	integer("PM_REDIS_DB", &c.Redis.DB)
	duration("PM_CACHE_TTL", &c.Redis.CacheTTL)

	str("PM_OUTDIR", &c.Output.Dir)
	str("PM_CATEGORY", &c.Output.Category)
	str("PM_METRICS_FILE", &c.Output.MetricsFile)

	str("PM_LOG_LEVEL", &c.Log.Level)
	boolean("PM_LOG_PRETTY", &c.Log.Pretty)
	duration("PM_TIMEOUT", &c.Timeout)

	if len(errs) > 0 {
		return fmt.Errorf("%w: environment: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
