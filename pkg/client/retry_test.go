package client

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// recordingWait captures requested delays instead of sleeping.
type recordingWait struct {
	delays []time.Duration
}

func (r *recordingWait) wait(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
	if config.Jitter != 0.2 {
		t.Errorf("Jitter = %v, want 0.2", config.Jitter)
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := DefaultRetryConfig()

	tests := []struct {
		name    string
		attempt int
		r       float64
		want    time.Duration
	}{
		{"first retry, no jitter", 1, 0.5, 1 * time.Second},
		{"second retry, no jitter", 2, 0.5, 2 * time.Second},
		{"third retry, no jitter", 3, 0.5, 4 * time.Second},
		{"low jitter bound", 1, 0, 800 * time.Millisecond},
		{"capped", 10, 0.5, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.Backoff(tt.attempt, tt.r); got != tt.want {
				t.Errorf("Backoff(%d, %v) = %v, want %v", tt.attempt, tt.r, got, tt.want)
			}
		})
	}
}

func TestRetryConfig_BackoffStrictlyIncreasingUnderJitter(t *testing.T) {
	cfg := DefaultRetryConfig()

	// Worst case: previous delay jittered high, next jittered low.
	for attempt := 1; attempt < 4; attempt++ {
		high := cfg.Backoff(attempt, 0.999999)
		low := cfg.Backoff(attempt+1, 0)
		if low <= high {
			t.Errorf("attempt %d: next minimum %v not greater than previous maximum %v", attempt, low, high)
		}
	}
}

func TestRetryConfig_JitterAboveMaxIsCapped(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.Jitter = 0.5

	if got, want := cfg.MaxJitter(), 1.0/3; math.Abs(got-want) > 1e-12 {
		t.Fatalf("MaxJitter() = %v, want %v", got, want)
	}

	// Uncapped, attempt 1 high would be 1.5s and attempt 2 low 1s.
	high := cfg.Backoff(1, 0.999)
	low := cfg.Backoff(2, 0)
	if low <= high {
		t.Errorf("Backoff(2, 0) = %v not greater than Backoff(1, 0.999) = %v", low, high)
	}
}

func TestRetryConfig_MaxJitter(t *testing.T) {
	tests := []struct {
		multiplier float64
		want       float64
	}{
		{2, 1.0 / 3},
		{3, 0.5},
		{1, 0},
		{0.5, 0},
	}

	for _, tt := range tests {
		cfg := RetryConfig{BackoffMultiplier: tt.multiplier}
		if got := cfg.MaxJitter(); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("MaxJitter() with multiplier %v = %v, want %v", tt.multiplier, got, tt.want)
		}
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	rec := &recordingWait{}
	callCount := 0

	attempts, err := retryWithBackoff(context.Background(), DefaultRetryConfig(), rec.wait, nil, func(int) attemptResult {
		callCount++
		return attemptResult{}
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 || callCount != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1", attempts, callCount)
	}
	if len(rec.delays) != 0 {
		t.Errorf("Expected no backoff, got %v", rec.delays)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	rec := &recordingWait{}

	attempts, err := retryWithBackoff(context.Background(), DefaultRetryConfig(), rec.wait, func() float64 { return 0.5 }, func(attempt int) attemptResult {
		if attempt < 3 {
			return attemptResult{err: errors.New("temporary"), class: ErrorClassServer}
		}
		return attemptResult{}
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(rec.delays) != len(want) || rec.delays[0] != want[0] || rec.delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", rec.delays, want)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	rec := &recordingWait{}
	testErr := errors.New("persistent error")

	attempts, err := retryWithBackoff(context.Background(), DefaultRetryConfig(), rec.wait, nil, func(int) attemptResult {
		return attemptResult{err: testErr, class: ErrorClassNetwork}
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts (MaxAttempts), got %d", attempts)
	}
	if len(rec.delays) != 2 {
		t.Errorf("Expected 2 backoffs, got %d", len(rec.delays))
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	rec := &recordingWait{}
	testErr := &HTTPError{StatusCode: 404, ErrorClass: ErrorClassClient}

	attempts, err := retryWithBackoff(context.Background(), DefaultRetryConfig(), rec.wait, nil, func(int) attemptResult {
		return attemptResult{err: testErr, class: ErrorClassClient}
	})

	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry for client errors), got %d", attempts)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for client errors")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recordingWait{}

	callCount := 0
	_, err := retryWithBackoff(ctx, DefaultRetryConfig(), rec.wait, nil, func(int) attemptResult {
		callCount++
		cancel()
		return attemptResult{err: errors.New("boom"), class: ErrorClassServer}
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() = %v, want nil", err)
	}
}
