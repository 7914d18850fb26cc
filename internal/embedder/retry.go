package embedder

import (
	"context"
	"time"
)

// RetryConfig tunes the in-provider retry loop. Providers retry
// transient API failures inline; the embed queue layers its own
// coarser requeue on top, so attempt counts stay small here.
type RetryConfig struct {
	MaxRetries int           // attempts before giving up
	BaseDelay  time.Duration // delay after the first failure
	MaxDelay   time.Duration // backoff ceiling
	Multiplier float64       // growth factor per attempt
}

// DefaultRetryConfig returns the retry posture used by the API-backed
// providers
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier: BackoffMultiplier,
	}
}

// retryWithBackoff runs fn up to cfg.MaxRetries times with exponential
// backoff between attempts. Context cancellation aborts immediately,
// both mid-wait and after a failed attempt; the last attempt's error
// is returned when every attempt fails.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := cfg.BaseDelay
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == cfg.MaxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return zero, lastErr
}
