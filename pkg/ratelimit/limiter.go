package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	acquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_ratelimit_acquisitions_total",
		Help: "Total request permits granted by host",
	}, []string{"host"})

	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a request permit by host",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"host"})

	localCooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_ratelimit_cooldowns_total",
		Help: "Total Retry-After cooldowns applied locally by host",
	}, []string{"host"})
)

// Limiter paces requests to one host. Permits are spaced 1/rps apart (burst 1),
// and a Retry-After cooldown can push the next permit further out.
//
// Limiter is safe for concurrent use. Waiters are served by x/time/rate
// reservations, so no caller starves while the rate is finite.
type Limiter struct {
	host    string
	limiter *rate.Limiter
	tracker *Tracker
	logger  zerolog.Logger

	mu            sync.Mutex
	cooldownUntil time.Time
}

// NewLimiter creates a limiter for host allowing rps requests per second.
// A non-positive rps disables pacing. tracker may be nil.
func NewLimiter(host string, rps float64, tracker *Tracker, logger zerolog.Logger) *Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Limiter{
		host:    host,
		limiter: rate.NewLimiter(limit, 1),
		tracker: tracker,
		logger:  logger,
	}
}

// Host returns the host name this limiter paces.
func (l *Limiter) Host() string {
	return l.host
}

// Rate returns the configured requests per second.
func (l *Limiter) Rate() float64 {
	return float64(l.limiter.Limit())
}

// Wait blocks until one more request to the host is permitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()

	if err := l.waitCooldown(ctx); err != nil {
		return fmt.Errorf("rate limit cooldown %s: %w", l.host, err)
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait %s: %w", l.host, err)
	}

	waited := time.Since(start)
	waitSeconds.WithLabelValues(l.host).Observe(waited.Seconds())
	acquisitionsTotal.WithLabelValues(l.host).Inc()
	if waited > time.Second {
		l.logger.Debug().Str("host", l.host).Dur("waited", waited).Msg("Permit granted after wait")
	}
	return nil
}

// Penalize delays every subsequent permit for host by d, typically the value
// of a Retry-After header. The cooldown is also published to the shared
// tracker when one is configured.
func (l *Limiter) Penalize(ctx context.Context, d time.Duration) {
	d = ClampCooldown(d)
	if d == 0 {
		return
	}

	until := time.Now().Add(d)
	l.mu.Lock()
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
	}
	l.mu.Unlock()
	localCooldownsTotal.WithLabelValues(l.host).Inc()

	if l.tracker != nil {
		if err := l.tracker.SetCooldown(ctx, l.host, d, "retry-after"); err != nil {
			l.logger.Warn().Err(err).Str("host", l.host).Msg("Failed to publish shared cooldown")
		}
	}
}

// cooldownRemaining returns the longer of the local and shared cooldowns.
func (l *Limiter) cooldownRemaining(ctx context.Context) time.Duration {
	l.mu.Lock()
	remaining := time.Until(l.cooldownUntil)
	l.mu.Unlock()

	if l.tracker != nil {
		shared, err := l.tracker.Remaining(ctx, l.host)
		if err != nil {
			l.logger.Warn().Err(err).Str("host", l.host).Msg("Shared cooldown unavailable")
		} else if shared > remaining {
			remaining = shared
		}
	}
	return remaining
}

func (l *Limiter) waitCooldown(ctx context.Context) error {
	for {
		d := l.cooldownRemaining(ctx)
		if d <= 0 {
			return nil
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Registry holds one Limiter per host.
type Registry struct {
	tracker *Tracker
	logger  zerolog.Logger

	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty registry. tracker may be nil.
func NewRegistry(tracker *Tracker, logger zerolog.Logger) *Registry {
	return &Registry{
		tracker:  tracker,
		logger:   logger,
		limiters: make(map[string]*Limiter),
	}
}

// Register creates (or replaces) the limiter for host and returns it.
func (r *Registry) Register(host string, rps float64) *Limiter {
	l := NewLimiter(host, rps, r.tracker, r.logger)

	r.mu.Lock()
	r.limiters[host] = l
	r.mu.Unlock()

	r.logger.Debug().Str("host", host).Float64("rps", rps).Msg("Limiter registered")
	return l
}

// Limiter returns the limiter registered for host.
func (r *Registry) Limiter(host string) (*Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[host]
	return l, ok
}

// Acquire blocks until one more request to host is permitted.
func (r *Registry) Acquire(ctx context.Context, host string) error {
	l, ok := r.Limiter(host)
	if !ok {
		return fmt.Errorf("no limiter registered for host %q", host)
	}
	return l.Wait(ctx)
}
