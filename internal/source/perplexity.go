package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/pkg/perplexity"
)

const perplexityPrompt = `How did the actor %s (died %s) die?

Answer with a single JSON object and nothing else:
{"cause_of_death": "<short cause or null>", "cause_details": "<one sentence or null>", "circumstances": "<short paragraph or null>", "location": "<place of death or null>", "confidence": <0.0-1.0>}

Use null for anything you cannot verify from current sources.`

// PerplexitySource asks a web-grounded model for the death facts. Paid per
// query, so it sits after the free tier in the cascade.
type PerplexitySource struct {
	meta
	client perplexity.Client
}

// NewPerplexity creates the Perplexity adapter.
func NewPerplexity(client perplexity.Client, s Settings) *PerplexitySource {
	return &PerplexitySource{
		meta:   newMeta("perplexity", CategoryPaid, ReliabilityNewsArchive, 0.005, time.Second, 60*time.Second, s),
		client: client,
	}
}

func (p *PerplexitySource) Lookup(ctx context.Context, subject model.Subject) (*LookupResult, error) {
	deathYear := "year unknown"
	if subject.DeathYear > 0 {
		deathYear = fmt.Sprintf("%d", subject.DeathYear)
	}
	prompt := fmt.Sprintf(perplexityPrompt, foldName(subject.Name), deathYear)

	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "perplexity: chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("perplexity: empty response")
	}

	res := p.result()
	res.Query = prompt
	res.ContentType = "model_answer"
	res.CostUSD = p.EstimatedCostPerQuery()

	text := resp.Choices[0].Message.Content
	res.RawText = text

	var out struct {
		CauseOfDeath  *string  `json:"cause_of_death"`
		CauseDetails  *string  `json:"cause_details"`
		Circumstances *string  `json:"circumstances"`
		Location      *string  `json:"location"`
		Confidence    *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &out); err != nil {
		// Unparsable answer still counts as a failed lookup, not an error:
		// the raw text stays available to the synthesis pass.
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
