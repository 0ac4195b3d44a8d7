package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// BackoffStrategy selects the curve the delay between attempts follows.
type BackoffStrategy int

const (
	// BackoffExponential scales the delay by Multiplier after each failed
	// attempt. The zero value, and the usual choice for API calls.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear grows the delay as a multiple of InitialBackoff
	// (1x, 2x, 3x, ...).
	BackoffLinear
)

// RetryConfig describes one retry policy. The zero value retries transient
// failures up to three attempts with exponential backoff from 500ms.
type RetryConfig struct {
	// MaxAttempts counts the first call too; 1 disables retries.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay regardless of strategy. Default 30s.
	MaxBackoff time.Duration

	// Multiplier drives BackoffExponential. Default 2.
	Multiplier float64

	// Strategy selects the backoff curve.
	Strategy BackoffStrategy

	// JitterFraction spreads each delay by up to +/- this fraction so
	// parallel documents don't hammer a recovering service in lockstep.
	// Zero means deterministic delays.
	JitterFraction float64

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry observes each failed attempt before the backoff sleep.
	OnRetry func(attempt int, err error)
}

// Do runs fn under cfg, retrying transient failures. The last error is
// returned once attempts are exhausted, the error is permanent, or ctx ends.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that produce a value. On success the value from the
// final attempt is returned; on failure the zero value and the last error.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		// A dead context or a permanent error ends the loop immediately.
		if ctx.Err() != nil || !retryable(err) || attempt >= cfg.MaxAttempts {
			return zero, lastErr
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(cfg.delayFor(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
}

func (cfg RetryConfig) normalized() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// delayFor computes the sleep after the given 1-based failed attempt.
func (cfg RetryConfig) delayFor(attempt int) time.Duration {
	base := float64(cfg.InitialBackoff)

	var delay float64
	switch cfg.Strategy {
	case BackoffLinear:
		delay = base * float64(attempt)
	default:
		delay = base * math.Pow(cfg.Multiplier, float64(attempt-1))
	}
	delay = math.Min(delay, float64(cfg.MaxBackoff))

	if cfg.JitterFraction > 0 {
		spread := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry hook that records each failed attempt
// against the named service and operation.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
