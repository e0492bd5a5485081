// Package resilience wraps calls to the asset service with retries and a
// circuit breaker.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/config"
)

// Policy describes how a failing call is retried.
type Policy struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter spreads each wait by up to ±Jitter of its value.
	Jitter float64

	// Classify decides whether an error is retried. Defaults to IsRetryable.
	Classify func(error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// PolicyFromConfig builds a Policy from the retry section of the config,
// keeping defaults for unset values.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	p := Policy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		Multiplier:     cfg.Multiplier,
		Jitter:         cfg.JitterFraction,
	}
	return p.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	if p.Classify == nil {
		p.Classify = IsRetryable
	}
	return p
}

// Backoff returns the wait before retry number attempt (1-based) after err.
// A server-supplied Retry-After wins over the computed delay, still capped
// by MaxBackoff.
func (p Policy) Backoff(attempt int, err error) time.Duration {
	p = p.withDefaults()

	var re *RetryableError
	if errors.As(err, &re) && re.RetryAfter > 0 {
		return min(re.RetryAfter, p.MaxBackoff)
	}

	d := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(p.MaxBackoff))
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Retry calls fn until it succeeds, returns an error Classify rejects, the
// attempts run out, or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.MaxAttempts || ctx.Err() != nil || !p.Classify(err) {
			return zero, err
		}

		wait := p.Backoff(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

// Do is Retry for calls without a result.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// LogRetries returns an OnRetry hook that logs each retry at warn level.
func LogRetries(operation string, fields ...zap.Field) func(int, error, time.Duration) {
	log := zap.L().With(append(fields, zap.String("operation", operation))...)
	return func(attempt int, err error, wait time.Duration) {
		log.Warn("resilience: retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
}
