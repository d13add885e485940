package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// DefaultProbeInterval is the fixed wait between bootstrap probes.
const DefaultProbeInterval = 5 * time.Second

// RetryConfig holds configuration for retry with backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Zero means retry until the context is cancelled.
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier applied to backoff after each attempt.
	BackoffMultiplier float64

	// JitterFraction is the fraction of backoff to randomize (0.0 to 1.0).
	JitterFraction float64
}

// DefaultRetryConfig returns the bootstrap retry configuration: a fixed
// five second interval with no attempt limit.
func DefaultRetryConfig() RetryConfig {
	return FixedInterval(DefaultProbeInterval)
}

// FixedInterval returns an unbounded retry configuration that waits d
// between attempts.
func FixedInterval(d time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:       0,
		InitialBackoff:    d,
		MaxBackoff:        d,
		BackoffMultiplier: 1.0,
		JitterFraction:    0,
	}
}

// retryWithBackoff executes the operation with backoff on failure, calling
// onError after every failed attempt. It respects context cancellation and
// returns the last error if all attempts fail.
func retryWithBackoff(ctx context.Context, config RetryConfig, operation func() error, onError func(attempt int, err error)) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; config.MaxAttempts <= 0 || attempt <= config.MaxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if !IsRetryableError(lastErr) {
			return lastErr
		}
		if onError != nil {
			onError(attempt, lastErr)
		}

		// Check if we've exhausted attempts
		if config.MaxAttempts > 0 && attempt >= config.MaxAttempts {
			break
		}

		// Calculate backoff with jitter
		jitter := time.Duration(float64(backoff) * config.JitterFraction * (rand.Float64()*2 - 1))
		sleepDuration := backoff + jitter
		if sleepDuration < 0 {
			sleepDuration = backoff
		}

		timer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return lastErr
}

// IsRetryableError determines if an error is worth retrying.
// Returns false for errors that indicate permanent failures.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Invalid descriptors are rejected the same way on every attempt.
	if errors.Is(err, core.ErrInvalidLockDuration) || errors.Is(err, core.ErrMissingHandler) {
		return false
	}

	// Connection refused, DNS failures and 5xx probes all clear up once the
	// broker is back, so everything else is retried.
	return true
}
