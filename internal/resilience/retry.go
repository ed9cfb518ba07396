package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls the backoff loop around a single external call.
type RetryConfig struct {
	// MaxAttempts counts the first try too, so 1 disables retries.
	MaxAttempts int

	// InitialBackoff seeds the exponential delay. Each retry multiplies it
	// by Multiplier, capped at MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// JitterFraction spreads each delay by up to the given fraction in
	// either direction: 0.25 lands within 25% of nominal.
	JitterFraction float64

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is tuned for remote API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// DoVal runs fn until it succeeds, the error stops being retryable, the
// context ends, or attempts run out. On failure the value from the last
// attempt is returned next to the error: a failed lookup can still carry
// state the caller has to account for, such as spend on a request that was
// answered with a block page.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var lastVal T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastVal, lastErr = fn(ctx)
		if lastErr == nil {
			return lastVal, nil
		}

		if ctx.Err() != nil || !shouldRetry(lastErr) || attempt == cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(cfg.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastVal, lastErr
		case <-timer.C:
		}
	}

	return lastVal, lastErr
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// delay computes the jittered backoff before retrying attempt (zero-based).
func (cfg RetryConfig) delay(attempt int) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	d = math.Min(d, float64(cfg.MaxBackoff))
	if cfg.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * cfg.JitterFraction
	}
	return time.Duration(math.Max(d, 0))
}

// RetryLogger returns an OnRetry callback that logs each attempt against a
// named service operation.
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
