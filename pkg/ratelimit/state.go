// Package ratelimit paces outgoing requests per upstream host and shares
// Retry-After cooldowns between snapshot processes through Redis.
package ratelimit

import (
	"fmt"
	"time"
)

// Redis key layout for shared cooldown state.
const (
	// RedisKeyPrefix prefixes every key written by the Tracker.
	RedisKeyPrefix = "pm:ratelimit"

	// MaxCooldown bounds a single Retry-After penalty. Larger values sent by
	// an upstream are clamped so a bad header cannot stall a run for hours.
	MaxCooldown = 2 * time.Minute
)

// CooldownKey returns the Redis key holding the cooldown state for host.
func CooldownKey(host string) string {
	return fmt.Sprintf("%s:%s:cooldown", RedisKeyPrefix, host)
}

// CooldownState describes a period during which no request may be sent to a host.
type CooldownState struct {
	// Host is the limiter name (gamma, clob, ...).
	Host string `json:"host"`

	// Until is the earliest time the next request may be issued.
	Until time.Time `json:"until"`

	// Reason records what triggered the cooldown (e.g. "retry-after").
	Reason string `json:"reason"`

	// SetAt is when the cooldown was recorded.
	SetAt time.Time `json:"set_at"`
}

// Active reports whether the cooldown is still in force at now.
func (s *CooldownState) Active(now time.Time) bool {
	return s != nil && now.Before(s.Until)
}

// Remaining returns the time left until the cooldown ends, or 0 if it has passed.
func (s *CooldownState) Remaining(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	d := s.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ClampCooldown bounds d to [0, MaxCooldown].
func ClampCooldown(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxCooldown {
		return MaxCooldown
	}
	return d
}
