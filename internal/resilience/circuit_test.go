package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tripBreaker(t *testing.T, cb *CircuitBreaker, failures int) {
	t.Helper()
	for range failures {
		_, _ = ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
			return 0, errors.New("lookup failed")
		})
	}
}

func TestCircuitBreaker_ClosedPassesValueThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	val, err := ExecuteVal(context.Background(), cb, func(context.Context) (string, error) {
		return "pneumonia", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "pneumonia", val)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	tripBreaker(t, cb, 3)
	require.Equal(t, CircuitOpen, cb.State())

	var called bool
	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	tripBreaker(t, cb, 1)
	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)

	// The earlier failure no longer counts, so one more failure stays closed.
	tripBreaker(t, cb, 1)
	assert.Equal(t, CircuitClosed, cb.State())

	tripBreaker(t, cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: 100 * time.Millisecond})
	cb.nowFunc = func() time.Time { return now }

	tripBreaker(t, cb, 2)
	require.Equal(t, CircuitOpen, cb.State())

	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }
	assert.Equal(t, CircuitHalfOpen, cb.State())

	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: 100 * time.Millisecond})
	cb.nowFunc = func() time.Time { return now }

	tripBreaker(t, cb, 2)
	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }

	tripBreaker(t, cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	var called bool
	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	tripBreaker(t, cb, 2)
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())

	val, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	type hop struct{ from, to CircuitState }
	var hops []hop
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(from, to CircuitState) { hops = append(hops, hop{from, to}) },
	})

	tripBreaker(t, cb, 2)
	require.Len(t, hops, 1)
	assert.Equal(t, hop{CircuitClosed, CircuitOpen}, hops[0])
}

func TestServiceBreakers_OneBreakerPerSource(t *testing.T) {
	sb := NewServiceBreakers(DefaultCircuitBreakerConfig())

	wiki := sb.Get("wikipedia")
	assert.Same(t, wiki, sb.Get("wikipedia"))
	assert.NotSame(t, wiki, sb.Get("perplexity"))
}

func TestServiceBreakers_IsolatesFailures(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	tripBreaker(t, sb.Get("findagrave"), 1)

	assert.Equal(t, CircuitOpen, sb.Get("findagrave").State())
	assert.Equal(t, CircuitClosed, sb.Get("wikipedia").State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
