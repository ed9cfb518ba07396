package fusion

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/source"
	"github.com/deadonfilm/deadonfilm/pkg/anthropic"
)

// defaultPromptCharBudget caps the total raw-source text packed into one
// cleanup prompt. Lowest-reliability material is dropped first.
const defaultPromptCharBudget = 24000

const synthesisSystemText = "You are a film historian verifying how actors died. Cross-check the provided sources against each other, prefer the most reliable ones, and return valid JSON matching the requested schema. Use null for anything the sources do not establish."

const synthesisPromptTmpl = `Subject: %s (%s)

Sources, most reliable first:

%s

From these sources, produce the best consolidated account of this person's death. Return a single JSON object:
{
  "cause_of_death": "<short cause or null>",
  "cause_details": "<one sentence of medical/factual detail or null>",
  "circumstances": "<short narrative paragraph or null>",
  "location": "<place of death or null>",
  "notable_factors": [<zero or more of: %s>],
  "related_people": [<names of people central to the death, or empty>],
  "confidence": "<high|medium|low>",
  "has_detailed_info": <true|false>
}`

// notableFactorTags is the fixed allow-list for the notable_factors field.
// Unknown tags from the model are dropped, never stored.
var notableFactorTags = []string{
	"accident",
	"illness",
	"overdose",
	"suicide",
	"homicide",
	"natural_causes",
	"on_set_accident",
	"during_production",
	"young_death",
	"sudden_death",
	"unsolved",
	"disputed",
}

var notableFactorSet = func() map[string]bool {
	set := make(map[string]bool, len(notableFactorTags))
	for _, t := range notableFactorTags {
		set[t] = true
	}
	return set
}()

// Synthesizer is the optional model cleanup pass that re-derives the
// canonical fields from all gathered raw text.
type Synthesizer struct {
	client     anthropic.Client
	model      string
	charBudget int
}

// NewSynthesizer creates a Synthesizer using the given Claude model.
func NewSynthesizer(client anthropic.Client, modelID string) *Synthesizer {
	return &Synthesizer{client: client, model: modelID, charBudget: defaultPromptCharBudget}
}

// WithCharBudget overrides the prompt character budget (testing and tuning).
func (s *Synthesizer) WithCharBudget(n int) *Synthesizer {
	if n > 0 {
		s.charBudget = n
	}
	return s
}

// Cleanup runs the model pass over the gathered raw sources. A provider or
// parse failure is a stage error: the caller degrades to the plain merge
// and the subject survives. The returned cost is real even on failure.
func (s *Synthesizer) Cleanup(ctx context.Context, subject model.Subject, results []*source.LookupResult) (*model.DeathFields, float64, error) {
	prompt := s.buildPrompt(subject, results)
	if prompt == "" {
		return nil, 0, eris.New("synthesis: no raw source text to work from")
	}

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: 1024,
		System:    []anthropic.SystemBlock{{Text: synthesisSystemText}},
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, 0, eris.Wrap(err, "synthesis: create message")
	}
	cost := resp.Usage.EstimateCost(s.model)

	text := anthropic.ExtractText(resp)
	var out synthesisOutput
	if err := json.Unmarshal([]byte(cleanJSON(text)), &out); err != nil {
		zap.L().Warn("synthesis: unparsable model output",
			zap.Int("person_id", subject.PersonID),
			zap.Error(err),
		)
		return nil, cost, eris.Wrap(err, "synthesis: parse model output")
	}

	fields := out.sanitize()
	return &fields, cost, nil
}

// buildPrompt packs raw source texts into the prompt, most reliable first,
// truncating and then dropping the least reliable entries once the
// character budget runs out.
func (s *Synthesizer) buildPrompt(subject model.Subject, results []*source.LookupResult) string {
	ranked := make([]*source.LookupResult, 0, len(results))
	for _, r := range results {
		if r != nil && strings.TrimSpace(r.RawText) != "" {
			ranked = append(ranked, r)
		}
	}
	if len(ranked) == 0 {
		return ""
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Reliability > ranked[j].Reliability
	})

	var b strings.Builder
	remaining := s.charBudget
	for _, r := range ranked {
		if remaining < 400 {
			break
		}
		header := fmt.Sprintf("=== %s (reliability %.2f) ===\n", r.Source, r.Reliability)
		text := strings.TrimSpace(r.RawText)
		if len(header)+len(text) > remaining {
			// Back off to a rune boundary so the cut never leaves a
			// mangled multi-byte character at the end.
			cut := remaining - len(header)
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		b.WriteString(header)
		b.WriteString(text)
		b.WriteString("\n\n")
		remaining -= len(header) + len(text) + 2
	}

	years := "years unknown"
	if subject.BirthYear > 0 && subject.DeathYear > 0 {
		years = fmt.Sprintf("%d-%d", subject.BirthYear, subject.DeathYear)
	}
	return fmt.Sprintf(synthesisPromptTmpl, subject.Name, years, b.String(), strings.Join(notableFactorTags, ", "))
}

// synthesisOutput is the typed shape of the model's JSON answer. Fields
// are lenient on input and sanitized uniformly before use.
type synthesisOutput struct {
	CauseOfDeath    *string `json:"cause_of_death"`
	CauseDetails    *string `json:"cause_details"`
	Circumstances   *string `json:"circumstances"`
	Location        *string `json:"location"`
	NotableFactors  []any   `json:"notable_factors"`
	RelatedPeople   []any   `json:"related_people"`
	Confidence      string  `json:"confidence"`
	HasDetailedInfo any     `json:"has_detailed_info"`
}

func (o synthesisOutput) sanitize() model.DeathFields {
	fields := model.DeathFields{
		CauseOfDeath:    derefString(o.CauseOfDeath),
		CauseDetails:    derefString(o.CauseDetails),
		Circumstances:   derefString(o.Circumstances),
		Location:        derefString(o.Location),
		NotableFactors:  sanitizeTags(o.NotableFactors),
		RelatedPeople:   sanitizeStrings(o.RelatedPeople),
		Confidence:      sanitizeConfidence(o.Confidence),
		HasDetailedInfo: coerceBool(o.HasDetailedInfo),
	}
	return fields
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// sanitizeTags keeps only allow-listed string tags, silently dropping
// unknown values and non-string entries.
func sanitizeTags(raw []any) []string {
	var out []string
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if notableFactorSet[s] {
			out = append(out, s)
		}
	}
	return out
}

// sanitizeStrings keeps non-empty string entries and drops everything else.
func sanitizeStrings(raw []any) []string {
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// sanitizeConfidence maps unrecognized confidence values to medium rather
// than trusting whatever the model invented.
func sanitizeConfidence(s string) model.Confidence {
	c := model.Confidence(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return model.ConfidenceMedium
	}
	return c
}

// coerceBool is strict: only a JSON true counts.
func coerceBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// cleanJSON strips markdown fences and extracts the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
