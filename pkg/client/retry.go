package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_http_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_http_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_http_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
//
// Every backoff is strictly longer than the previous one until MaxBackoff is
// reached: the smallest jittered delay of attempt n+1 (Multiplier*(1-Jitter))
// exceeds the largest of attempt n (1+Jitter). Backoff caps Jitter at
// MaxJitter to keep that true.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the un-jittered delay.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// Jitter is the fractional spread applied to each delay (0.2 = ±20%).
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
// r is a uniform sample from [0, 1).
func (c RetryConfig) Backoff(attempt int, r float64) time.Duration {
	backoff := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= c.BackoffMultiplier
		if backoff >= float64(c.MaxBackoff) {
			backoff = float64(c.MaxBackoff)
			break
		}
	}
	jitter := min(c.Jitter, c.MaxJitter())
	factor := 1 - jitter + 2*jitter*r
	return time.Duration(math.Round(backoff * factor))
}

// MaxJitter is the largest Jitter for which Multiplier*(1-J) >= 1+J, i.e.
// (m-1)/(m+1). It is 0 when the multiplier does not grow the delay.
func (c RetryConfig) MaxJitter() float64 {
	m := c.BackoffMultiplier
	if m <= 1 {
		return 0
	}
	return (m - 1) / (m + 1)
}

// attemptResult is the outcome of one attempt: success (err == nil), a
// retryable failure, or a terminal failure.
type attemptResult struct {
	err   error
	class ErrorClass
}

func (r attemptResult) retryable() bool {
	return r.err != nil && shouldRetry(r.class)
}

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryWithBackoff drives the attempt progression
//
//	Attempt(n) -> Success | Terminal | Retryable -> wait -> Attempt(n+1)
//
// until success, a terminal failure, or MaxAttempts retryable failures.
// It returns the number of attempts made.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, wait waitFunc, jitter func() float64, fn func(attempt int) attemptResult) (int, error) {
	if wait == nil {
		wait = sleepContext
	}
	if jitter == nil {
		jitter = rand.Float64
	}

	var last attemptResult
	for attempt := 1; ; attempt++ {
		last = fn(attempt)

		if last.err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return attempt, nil
		}

		if !last.retryable() {
			return attempt, last.err
		}

		if attempt >= cfg.MaxAttempts {
			retryExhaustedTotal.WithLabelValues(string(last.class)).Inc()
			log.Error().
				Str("error_class", string(last.class)).
				Int("max_attempts", cfg.MaxAttempts).
				Err(last.err).
				Msg("Retry attempts exhausted")
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, last.err)
		}

		delay := cfg.Backoff(attempt, jitter())
		retriesTotal.WithLabelValues(string(last.class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(last.class)).Observe(delay.Seconds())

		log.Warn().
			Str("error_class", string(last.class)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(last.err).
			Msg("Retrying request after backoff")

		if err := wait(ctx, delay); err != nil {
			return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}
}
