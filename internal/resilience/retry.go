// Package resilience provides the retry policies used for feature-server
// reads and writes, and the fatal/non-fatal handling of exhausted retries.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 3.
	MaxAttempts int

	// Backoff is the delay before the first retry. Default: 60s.
	Backoff time.Duration

	// Multiplier scales the delay after each retry. 1.0 keeps it fixed.
	// Default: 1.0.
	Multiplier float64

	// MaxBackoff caps the delay. Zero means no cap.
	MaxBackoff time.Duration

	// JitterFraction adds ±fraction of the delay. Default: 0.
	JitterFraction float64

	// ShouldRetry decides whether an error is retried. Nil retries every error.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with the attempt number.
	OnRetry func(attempt int, err error)

	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// FixedPolicy retries every error up to attempts times with a fixed sleep.
// The feature-server reference policy is FixedPolicy(3, 60*time.Second).
func FixedPolicy(attempts int, sleep time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Backoff:     sleep,
		Multiplier:  1.0,
	}
}

// ExponentialPolicy retries transient errors with exponential backoff and
// jitter. Used for paginated reads where a fixed minute-long wait is too slow.
func ExponentialPolicy(attempts int, initial, maxBackoff time.Duration) Policy {
	return Policy{
		MaxAttempts:    attempts,
		Backoff:        initial,
		Multiplier:     2.0,
		MaxBackoff:     maxBackoff,
		JitterFraction: 0.25,
		ShouldRetry:    IsTransient,
	}
}

// Do runs fn until it succeeds, the error is not retryable, the context is
// cancelled or attempts run out. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = applyDefaults(p)

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(lastErr) {
			return zero, lastErr
		}
		if attempt >= p.MaxAttempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, lastErr)
		}
		if err := p.Sleep(ctx, delayFor(attempt, p)); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

func applyDefaults(p Policy) Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 1.0
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	return p
}

func delayFor(attempt int, p Policy) time.Duration {
	delay := float64(p.Backoff) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxBackoff > 0 && delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	if p.JitterFraction > 0 {
		span := delay * p.JitterFraction
		delay += (rand.Float64()*2 - 1) * span
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
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
