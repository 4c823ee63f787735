package retention

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/randalmurphal/kpiflow/pkg/kpiflow/store"
)

// RetryConfig configures retries of a failed sweep.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64
}

// DefaultRetry retries a sweep three times, suited to a locked SQLite file.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, store.ErrStoreClosed)
}

// withRetry calls fn until it succeeds, fails permanently or runs out of
// attempts, and returns the attempts made.
func withRetry(ctx context.Context, cfg RetryConfig, fn func(context.Context) (int64, error)) (int64, int, error) {
	attempts := max(cfg.MaxAttempts, 1)
	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, attempt, err
		}

		n, err := fn(ctx)
		if err == nil {
			return n, attempt + 1, nil
		}
		lastErr = err
		if !retryable(err) {
			return 0, attempt + 1, err
		}

		// Don't sleep after the last attempt
		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return 0, attempt + 1, ctx.Err()
			case <-time.After(calculateBackoff(backoff, cfg.Jitter)):
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}
	return 0, attempts, lastErr
}

// calculateBackoff returns the backoff duration with jitter applied.
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + jitterAmount)
}
