package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	sharedCooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_ratelimit_shared_cooldowns_total",
		Help: "Total cooldowns published to Redis by host",
	}, []string{"host"})

	sharedCooldownErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_ratelimit_shared_cooldown_errors_total",
		Help: "Total Redis errors while reading or writing cooldown state",
	}, []string{"operation"})
)

// Tracker stores per-host cooldowns in Redis so that every process pacing the
// same upstream backs off together after a 429.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new cooldown tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetState returns the active cooldown for host, or nil if there is none.
func (t *Tracker) GetState(ctx context.Context, host string) (*CooldownState, error) {
	data, err := t.redis.Get(ctx, CooldownKey(host)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		sharedCooldownErrorsTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("get cooldown: %w", err)
	}

	var state CooldownState
	if err := json.Unmarshal(data, &state); err != nil {
		sharedCooldownErrorsTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("parse cooldown: %w", err)
	}

	if !state.Active(t.now()) {
		return nil, nil
	}
	return &state, nil
}

// SetCooldown records a cooldown of d for host. An existing cooldown that ends
// later is left in place.
func (t *Tracker) SetCooldown(ctx context.Context, host string, d time.Duration, reason string) error {
	d = ClampCooldown(d)
	if d == 0 {
		return nil
	}

	now := t.now()
	existing, err := t.GetState(ctx, host)
	if err != nil {
		return err
	}
	if existing != nil && !existing.Until.Before(now.Add(d)) {
		return nil
	}

	state := CooldownState{
		Host:   host,
		Until:  now.Add(d),
		Reason: reason,
		SetAt:  now,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal cooldown: %w", err)
	}

	if err := t.redis.Set(ctx, CooldownKey(host), data, d).Err(); err != nil {
		sharedCooldownErrorsTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("store cooldown in redis: %w", err)
	}

	sharedCooldownsTotal.WithLabelValues(host).Inc()
	t.logger.Warn().
		Str("host", host).
		Dur("cooldown", d).
		Str("reason", reason).
		Msg("Shared cooldown published")

	return nil
}

// Remaining returns how long requests to host must still wait.
func (t *Tracker) Remaining(ctx context.Context, host string) (time.Duration, error) {
	state, err := t.GetState(ctx, host)
	if err != nil {
		return 0, err
	}
	return state.Remaining(t.now()), nil
}
