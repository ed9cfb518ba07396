// Package resilience provides the retry and circuit breaker layers wrapped
// around external source and API calls.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the current disposition of a breaker.
type CircuitState int

const (
	// CircuitClosed lets requests flow.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests outright after repeated failures.
	CircuitOpen
	// CircuitHalfOpen lets a probe request through to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected without being attempted.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls when a breaker opens and recovers.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long an open circuit waits before allowing a
	// half-open probe. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMaxProbes is the successful probe count that closes the
	// circuit again. Default: 1.
	HalfOpenMaxProbes int

	// OnStateChange observes transitions between states.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the defaults above.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenMaxProbes: 1,
	}
}

// CircuitBreaker guards a single service. Any error counts toward the
// failure threshold; callers that retry selectively filter errors before
// they reach the breaker.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenSuccesses   int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a breaker, filling zero config fields with
// defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = def.HalfOpenMaxProbes
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// ExecuteVal runs fn through the breaker, passing its value and error
// through unchanged. Returns ErrCircuitOpen without calling fn when the
// circuit is open.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := cb.allowRequest(); err != nil {
		var zero T
		return zero, err
	}

	val, err := fn(ctx)
	cb.recordResult(err)
	return val, err
}

// State returns the current circuit state, reporting half-open once an open
// circuit has aged past the reset timeout.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.lastFailureTime) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset forces the circuit closed, for manual recovery.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	old := cb.state
	cb.state = CircuitClosed
	cb.consecutiveFailures = 0
	cb.halfOpenSuccesses = 0
	if old != CircuitClosed && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(old, CircuitClosed)
	}
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.nowFunc().Sub(cb.lastFailureTime) >= cb.cfg.ResetTimeout {
			cb.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		// Closed and half-open both admit the request.
		return nil
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		switch cb.state {
		case CircuitHalfOpen:
			cb.halfOpenSuccesses++
			if cb.halfOpenSuccesses >= cb.cfg.HalfOpenMaxProbes {
				cb.transition(CircuitClosed)
				cb.consecutiveFailures = 0
				cb.halfOpenSuccesses = 0
			}
		case CircuitClosed:
			cb.consecutiveFailures = 0
		}
		return
	}

	cb.consecutiveFailures++
	cb.lastFailureTime = cb.nowFunc()

	switch cb.state {
	case CircuitClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failed probe reopens the circuit.
		cb.transition(CircuitOpen)
		cb.halfOpenSuccesses = 0
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// ServiceBreakers holds one breaker per named service, created lazily.
type ServiceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewServiceBreakers creates the registry. Breakers created through Get log
// their state transitions under the service name unless cfg installs its
// own OnStateChange.
func NewServiceBreakers(cfg CircuitBreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for the named service, creating one if needed.
func (sb *ServiceBreakers) Get(service string) *CircuitBreaker {
	sb.mu.RLock()
	cb, ok := sb.breakers[service]
	sb.mu.RUnlock()
	if ok {
		return cb
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if cb, ok = sb.breakers[service]; ok {
		return cb
	}
	cfg := sb.cfg
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to CircuitState) {
			zap.L().Warn("circuit state changed",
				zap.String("service", service),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	cb = NewCircuitBreaker(cfg)
	sb.breakers[service] = cb
	return cb
}
