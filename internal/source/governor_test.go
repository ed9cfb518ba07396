package source

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/resilience"
)

func TestGovernorDo_StampsElapsed(t *testing.T) {
	g := NewGovernor()
	src := newStubSource("wikipedia", CategoryFree, 0)

	res, err := g.Do(context.Background(), src, model.Subject{PersonID: 1, Name: "Test"})
	require.NoError(t, err)
	assert.Greater(t, res.Elapsed.Nanoseconds(), int64(0))
	assert.Equal(t, 1, src.calls)
}

func TestGovernorDo_NoRetryOnPermanentFailure(t *testing.T) {
	g := NewGovernor()
	src := newStubSource("wikipedia", CategoryFree, 0)
	src.lookup = func(context.Context, model.Subject) (*LookupResult, error) {
		return nil, eris.New("page not found")
	}

	_, err := g.Do(context.Background(), src, model.Subject{PersonID: 1})
	require.Error(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestGovernorDo_RetriesTransientFailure(t *testing.T) {
	g := NewGovernor()
	src := newStubSource("wikipedia", CategoryFree, 0)
	src.lookup = func(context.Context, model.Subject) (*LookupResult, error) {
		if src.calls == 1 {
			return nil, resilience.NewTransientError(eris.New("connection reset"), 0)
		}
		res := src.result()
		res.Success = true
		return res, nil
	}

	res, err := g.Do(context.Background(), src, model.Subject{PersonID: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, src.calls)
}

func TestGovernorDo_NeverRetriesBlocked(t *testing.T) {
	g := NewGovernor()
	src := newStubSource("findagrave", CategoryFree, 0)
	src.lookup = func(context.Context, model.Subject) (*LookupResult, error) {
		return nil, &BlockedError{Source: "findagrave", Reason: "captcha"}
	}

	_, err := g.Do(context.Background(), src, model.Subject{PersonID: 1})
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
	assert.Equal(t, 1, src.calls)
}

func TestGovernorDo_BlockedLookupKeepsResult(t *testing.T) {
	g := NewGovernor()
	src := newStubSource("findagrave", CategoryFree, 0)
	// A block page is still a billed request. The result rides back next
	// to the error so the caller can charge the spend.
	src.lookup = func(context.Context, model.Subject) (*LookupResult, error) {
		res := src.result()
		res.CostUSD = 0.02
		return res, &BlockedError{Source: "findagrave", Reason: "captcha"}
	}

	res, err := g.Do(context.Background(), src, model.Subject{PersonID: 1})
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
	require.NotNil(t, res)
	assert.Equal(t, 0.02, res.CostUSD)
	assert.Greater(t, res.Elapsed.Nanoseconds(), int64(0))
}

func TestGovernorDo_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	g := NewGovernor()
	src := newStubSource("obituaries", CategoryFree, 0)
	src.lookup = func(context.Context, model.Subject) (*LookupResult, error) {
		return nil, resilience.NewTransientError(eris.New("upstream down"), 503)
	}

	// Each Do makes two attempts (one retry); the default breaker trips
	// after five consecutive failures.
	ctx := context.Background()
	for range 3 {
		_, err := g.Do(ctx, src, model.Subject{PersonID: 1})
		require.Error(t, err)
	}

	callsBefore := src.calls
	_, err := g.Do(ctx, src, model.Subject{PersonID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, callsBefore, src.calls)
}
