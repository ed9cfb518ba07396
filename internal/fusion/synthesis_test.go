package fusion

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/source"
	"github.com/deadonfilm/deadonfilm/pkg/anthropic"
)

type fakeAnthropicClient struct {
	text    string
	usage   anthropic.TokenUsage
	err     error
	lastReq anthropic.MessageRequest
}

func (f *fakeAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.text}},
		Usage:   f.usage,
	}, nil
}

func rawResults() []*source.LookupResult {
	return []*source.LookupResult{
		{Source: "wikipedia", Reliability: 0.95, Success: true, RawText: "He died of stomach cancer in Manhattan."},
		{Source: "findagrave", Reliability: 0.65, Success: true, RawText: "Beloved actor, gone too soon."},
	}
}

func TestCleanup_ParsesModelOutput(t *testing.T) {
	client := &fakeAnthropicClient{
		text: `{"cause_of_death": "stomach cancer", "cause_details": "Complications of stomach cancer.", "circumstances": null, "location": "Manhattan, New York", "notable_factors": ["illness"], "related_people": [], "confidence": "high", "has_detailed_info": true}`,
		usage: anthropic.TokenUsage{
			InputTokens:  2000,
			OutputTokens: 150,
		},
	}
	s := NewSynthesizer(client, "claude-sonnet-4-5-20250929")

	fields, cost, err := s.Cleanup(context.Background(), model.Subject{PersonID: 668, Name: "Raul Julia"}, rawResults())
	require.NoError(t, err)
	require.NotNil(t, fields)

	assert.Equal(t, "stomach cancer", fields.CauseOfDeath)
	assert.Equal(t, "Manhattan, New York", fields.Location)
	assert.Equal(t, []string{"illness"}, fields.NotableFactors)
	assert.Equal(t, model.ConfidenceHigh, fields.Confidence)
	assert.True(t, fields.HasDetailedInfo)
	assert.Greater(t, cost, 0.0)
}

func TestCleanup_StripsMarkdownFences(t *testing.T) {
	client := &fakeAnthropicClient{
		text: "```json\n{\"cause_of_death\": \"heart attack\", \"confidence\": \"medium\"}\n```",
	}
	s := NewSynthesizer(client, "claude-sonnet-4-5-20250929")

	fields, _, err := s.Cleanup(context.Background(), model.Subject{Name: "Test Person"}, rawResults())
	require.NoError(t, err)
	assert.Equal(t, "heart attack", fields.CauseOfDeath)
}

func TestCleanup_UnparsableOutputIsError(t *testing.T) {
	client := &fakeAnthropicClient{
		text:  "I cannot determine how this person died.",
		usage: anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 20},
	}
	s := NewSynthesizer(client, "claude-sonnet-4-5-20250929")

	fields, cost, err := s.Cleanup(context.Background(), model.Subject{Name: "Test Person"}, rawResults())
	require.Error(t, err)
	assert.Nil(t, fields)
	// The tokens were still consumed; cost must be reported on failure.
	assert.Greater(t, cost, 0.0)
}

func TestCleanup_ProviderError(t *testing.T) {
	client := &fakeAnthropicClient{err: eris.New("overloaded")}
	s := NewSynthesizer(client, "claude-sonnet-4-5-20250929")

	_, _, err := s.Cleanup(context.Background(), model.Subject{Name: "Test Person"}, rawResults())
	require.Error(t, err)
}

func TestCleanup_NoRawText(t *testing.T) {
	s := NewSynthesizer(&fakeAnthropicClient{}, "claude-sonnet-4-5-20250929")

	_, cost, err := s.Cleanup(context.Background(), model.Subject{Name: "Test Person"}, []*source.LookupResult{
		{Source: "wikipedia", Success: true, RawText: "   "},
	})
	require.Error(t, err)
	assert.Zero(t, cost)
}

func TestBuildPrompt_MostReliableFirstAndBudgeted(t *testing.T) {
	client := &fakeAnthropicClient{}
	s := NewSynthesizer(client, "claude-sonnet-4-5-20250929").WithCharBudget(900)

	results := []*source.LookupResult{
		{Source: "findagrave", Reliability: 0.65, RawText: strings.Repeat("grave ", 100)},
		{Source: "wikipedia", Reliability: 0.95, RawText: strings.Repeat("wiki ", 100)},
	}
	prompt := s.buildPrompt(model.Subject{Name: "Buddy Holly", BirthYear: 1936, DeathYear: 1959}, results)

	require.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "Buddy Holly")
	assert.Contains(t, prompt, "1936-1959")
	wikiIdx := strings.Index(prompt, "=== wikipedia")
	require.GreaterOrEqual(t, wikiIdx, 0)
	graveIdx := strings.Index(prompt, "=== findagrave")
	if graveIdx >= 0 {
		assert.Less(t, wikiIdx, graveIdx)
	}
}

func TestBuildPrompt_TruncatesOnRuneBoundary(t *testing.T) {
	client := &fakeAnthropicClient{}
	s := NewSynthesizer(client, "claude-sonnet-4-5-20250929").WithCharBudget(500)

	// Multi-byte text long enough to force truncation. A byte-offset cut
	// would land mid-rune and corrupt the prompt.
	results := []*source.LookupResult{
		{Source: "wikipedia", Reliability: 0.95, RawText: strings.Repeat("船越英二は映画俳優だった。", 60)},
	}
	prompt := s.buildPrompt(model.Subject{Name: "Eiji Funakoshi", BirthYear: 1923, DeathYear: 2007}, results)

	require.NotEmpty(t, prompt)
	assert.True(t, utf8.ValidString(prompt), "truncation must not split a rune")
}

func TestSanitizeTags(t *testing.T) {
	got := sanitizeTags([]any{"Illness", " overdose ", "bogus_tag", 42, nil})
	assert.Equal(t, []string{"illness", "overdose"}, got)
}

func TestSanitizeConfidence(t *testing.T) {
	assert.Equal(t, model.ConfidenceHigh, sanitizeConfidence("High"))
	assert.Equal(t, model.ConfidenceMedium, sanitizeConfidence("certain"))
	assert.Equal(t, model.ConfidenceMedium, sanitizeConfidence(""))
}

func TestCoerceBool(t *testing.T) {
	assert.True(t, coerceBool(true))
	assert.False(t, coerceBool("true"))
	assert.False(t, coerceBool(1))
	assert.False(t, coerceBool(nil))
}

func TestCleanJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: {\"a\":1} done.", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cleanJSON(tc.in), "input %q", tc.in)
	}
}
