package config

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/pm-snapshot/pkg/clob"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	switch {
	case c.Gamma.BaseURL == "":
		return invalid("gamma.base_url is required")
	case c.CLOB.BaseURL == "":
		return invalid("clob.base_url is required")
	case c.Gamma.RateLimit <= 0:
		return invalid("gamma.rate_limit must be > 0, got %v", c.Gamma.RateLimit)
	case c.CLOB.RateLimit <= 0:
		return invalid("clob.rate_limit must be > 0, got %v", c.CLOB.RateLimit)
	case c.Gamma.PageSize < 1:
		return invalid("gamma.page_size must be >= 1, got %d", c.Gamma.PageSize)
	case c.Gamma.MaxPages < 1:
		return invalid("gamma.max_pages must be >= 1, got %d", c.Gamma.MaxPages)
	case c.Gamma.MaxRecords < 0:
		return invalid("gamma.max_records must be >= 0, got %d", c.Gamma.MaxRecords)
	case c.CLOB.BatchSize < 1 || c.CLOB.BatchSize > clob.MaxBatchSize:
		return invalid("clob.batch_size must be between 1 and %d, got %d", clob.MaxBatchSize, c.CLOB.BatchSize)
	case c.CLOB.Concurrency < 1:
		return invalid("clob.concurrency must be >= 1, got %d", c.CLOB.Concurrency)
	case c.HTTP.UserAgent == "":
		return invalid("http.user_agent is required")
	case c.HTTP.ConnectTimeout <= 0 || c.HTTP.ReadTimeout <= 0:
		return invalid("http timeouts must be > 0")
	case c.HTTP.MaxAttempts < 1:
		return invalid("http.max_attempts must be >= 1, got %d", c.HTTP.MaxAttempts)
	case c.HTTP.InitialBackoff <= 0 || c.HTTP.MaxBackoff < c.HTTP.InitialBackoff:
		return invalid("http backoff must satisfy 0 < initial_backoff <= max_backoff")
	case c.HTTP.Jitter < 0 || c.HTTP.Jitter >= c.ClientConfig().Retry.MaxJitter():
		return invalid("http.jitter must be in [0, %.3f) so backoff keeps growing, got %v",
			c.ClientConfig().Retry.MaxJitter(), c.HTTP.Jitter)
	case c.Redis.CacheTTL < 0:
		return invalid("redis.cache_ttl must be >= 0")
	case c.Output.Dir == "":
		return invalid("output.dir is required")
	case c.Timeout < 0:
		return invalid("timeout must be >= 0")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
