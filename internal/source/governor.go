package source

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/resilience"
)

// Governor enforces each source's minimum inter-request delay and request
// timeout, and shields the cascade from sources that keep failing. Pacing
// and breaker state are tracked independently per source, so a slow or
// broken source never throttles a healthy one.
type Governor struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers *resilience.ServiceBreakers
	retry    resilience.RetryConfig
}

// NewGovernor creates a Governor with no pacing or breaker history.
func NewGovernor() *Governor {
	retry := resilience.DefaultRetryConfig()
	// Most clients retry their own transient failures; this layer only
	// covers dial-level errors that never reached the client's loop.
	retry.MaxAttempts = 2
	retry.ShouldRetry = func(err error) bool {
		return resilience.IsTransient(err) && !IsBlocked(err)
	}

	return &Governor{
		limiters: make(map[string]*rate.Limiter),
		breakers: resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
		retry:    retry,
	}
}

func (g *Governor) limiter(s Source) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	lim, ok := g.limiters[s.Name()]
	if !ok {
		delay := s.MinDelay()
		if delay <= 0 {
			delay = time.Millisecond
		}
		lim = rate.NewLimiter(rate.Every(delay), 1)
		g.limiters[s.Name()] = lim
	}
	return lim
}

// Do waits out the source's minimum delay, then runs the lookup through the
// source's circuit breaker under its request timeout. The timeout covers a
// single attempt; a deadline hit surfaces as an ordinary lookup error. When
// the breaker is open the lookup is skipped outright and the cascade records
// the failure and moves on. Elapsed time is stamped on the result when the
// source didn't set it.
func (g *Governor) Do(ctx context.Context, s Source, subject model.Subject) (*LookupResult, error) {
	if err := g.limiter(s).Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "source %s: rate wait", s.Name())
	}

	retry := g.retry
	retry.OnRetry = resilience.RetryLogger(s.Name(), "lookup")

	breaker := g.breakers.Get(s.Name())

	start := time.Now()
	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*LookupResult, error) {
		return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*LookupResult, error) {
			callCtx := ctx
			if timeout := s.RequestTimeout(); timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return s.Lookup(callCtx, subject)
		})
	})
	if res != nil && res.Elapsed == 0 {
		res.Elapsed = time.Since(start)
	}
	return res, err
}
