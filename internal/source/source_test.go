package source

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deadonfilm/deadonfilm/internal/model"
)

type stubSource struct {
	meta
	lookup func(ctx context.Context, subject model.Subject) (*LookupResult, error)
	calls  int
}

func newStubSource(name string, category Category, cost float64) *stubSource {
	return &stubSource{
		meta: meta{
			name:        name,
			category:    category,
			reliability: ReliabilityEncyclopedia,
			cost:        cost,
			minDelay:    time.Millisecond,
			timeout:     time.Second,
		},
	}
}

func (s *stubSource) Lookup(ctx context.Context, subject model.Subject) (*LookupResult, error) {
	s.calls++
	if s.lookup != nil {
		return s.lookup(ctx, subject)
	}
	res := s.result()
	res.Success = true
	return res, nil
}

func TestParseCategories(t *testing.T) {
	got := ParseCategories([]string{"free", "paid", "premium", "ai"})
	assert.Equal(t, []Category{CategoryFree, CategoryPaid, CategoryAI}, got)

	assert.Nil(t, ParseCategories(nil))
}

func TestRegistry_CascadeOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newStubSource("claude", CategoryAI, 0.01))
	reg.Register(newStubSource("perplexity", CategoryPaid, 0.005))
	reg.Register(newStubSource("findagrave", CategoryFree, 0))
	reg.Register(newStubSource("wikipedia", CategoryFree, 0))

	names := func(sources []Source) []string {
		out := make([]string, len(sources))
		for i, s := range sources {
			out[i] = s.Name()
		}
		return out
	}

	// Free before paid before AI; ties keep registration order.
	all := reg.Cascade(nil)
	assert.Equal(t, []string{"findagrave", "wikipedia", "perplexity", "claude"}, names(all))

	freeOnly := reg.Cascade([]Category{CategoryFree})
	assert.Equal(t, []string{"findagrave", "wikipedia"}, names(freeOnly))

	paidAndAI := reg.Cascade([]Category{CategoryPaid, CategoryAI})
	assert.Equal(t, []string{"perplexity", "claude"}, names(paidAndAI))
}

func TestRegistry_CheaperFirstWithinCategory(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newStubSource("expensive", CategoryPaid, 0.02))
	reg.Register(newStubSource("cheap", CategoryPaid, 0.005))

	cascade := reg.Cascade([]Category{CategoryPaid})
	require.Len(t, cascade, 2)
	assert.Equal(t, "cheap", cascade[0].Name())
	assert.Equal(t, "expensive", cascade[1].Name())
}

func TestRegistry_ReRegisterKeepsPosition(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newStubSource("wikipedia", CategoryFree, 0))
	reg.Register(newStubSource("findagrave", CategoryFree, 0))

	replacement := newStubSource("wikipedia", CategoryFree, 0)
	reg.Register(replacement)

	assert.Equal(t, []string{"wikipedia", "findagrave"}, reg.Names())
	assert.True(t, reg.Get("wikipedia") == Source(replacement))
}

func TestIsBlocked(t *testing.T) {
	blocked := &BlockedError{Source: "findagrave", Reason: "captcha"}
	assert.True(t, IsBlocked(blocked))
	assert.True(t, IsBlocked(eris.Wrap(blocked, "lookup")))
	assert.False(t, IsBlocked(eris.New("timeout")))
	assert.Contains(t, blocked.Error(), "captcha")
}

func TestSettingsOverrideDefaults(t *testing.T) {
	m := newMeta("wikipedia", CategoryFree, ReliabilityEncyclopedia, 0, time.Second, 10*time.Second, Settings{
		ReliabilityScore: 0.5,
		CostPerQuery:     0.002,
		MinDelay:         5 * time.Second,
		Timeout:          time.Minute,
	})

	assert.InDelta(t, 0.5, m.Reliability().Score, 1e-9)
	assert.InDelta(t, 0.002, m.EstimatedCostPerQuery(), 1e-9)
	assert.Equal(t, 5*time.Second, m.MinDelay())
	assert.Equal(t, time.Minute, m.RequestTimeout())
}
