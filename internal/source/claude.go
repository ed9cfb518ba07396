package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/pkg/anthropic"
)

const claudePrompt = `What is known about the death of the actor %s (%s)?

Return a single JSON object and nothing else:
{"cause_of_death": "<short cause or null>", "cause_details": "<one sentence or null>", "circumstances": "<short paragraph or null>", "location": "<place of death or null>", "confidence": <0.0-1.0>}

Only state facts you are confident about; use null otherwise, and keep confidence low for anything you are unsure of.`

// ClaudeSource queries Claude's own knowledge as a last-resort fallback
// when the web sources came up empty or inconclusive.
type ClaudeSource struct {
	meta
	client anthropic.Client
	model  string
}

// NewClaude creates the Claude knowledge adapter.
func NewClaude(client anthropic.Client, modelID string, s Settings) *ClaudeSource {
	return &ClaudeSource{
		meta:   newMeta("claude", CategoryAI, ReliabilityModelKnowledge, 0.01, time.Second, 60*time.Second, s),
		client: client,
		model:  modelID,
	}
}

func (c *ClaudeSource) Lookup(ctx context.Context, subject model.Subject) (*LookupResult, error) {
	years := "years unknown"
	if subject.BirthYear > 0 && subject.DeathYear > 0 {
		years = fmt.Sprintf("%d-%d", subject.BirthYear, subject.DeathYear)
	}
	prompt := fmt.Sprintf(claudePrompt, foldName(subject.Name), years)

	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: 1024,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "claude: create message")
	}

	res := c.result()
	res.Query = prompt
	res.ContentType = "model_answer"
	res.CostUSD = resp.Usage.EstimateCost(c.model)

	text := anthropic.ExtractText(resp)
	res.RawText = text

	var out struct {
		CauseOfDeath  *string  `json:"cause_of_death"`
		CauseDetails  *string  `json:"cause_details"`
		Circumstances *string  `json:"circumstances"`
		Location      *string  `json:"location"`
		Confidence    *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &out); err != nil {
		res.Err = "unparsable answer: " + err.Error()
		return res, nil
	}

	res.Fields = make(map[string]any)
	if out.CauseOfDeath != nil && *out.CauseOfDeath != "" {
		res.Fields[FieldCauseOfDeath] = *out.CauseOfDeath
	}
	if out.CauseDetails != nil && *out.CauseDetails != "" {
		res.Fields[FieldCauseDetails] = *out.CauseDetails
	}
	if out.Circumstances != nil && *out.Circumstances != "" {
		res.Fields[FieldCircumstances] = *out.Circumstances
	}
	if out.Location != nil && *out.Location != "" {
		res.Fields[FieldLocation] = *out.Location
	}
	if out.Confidence != nil {
		res.Confidence = *out.Confidence
	}
	res.Success = len(res.Fields) > 0
	return res, nil
}
