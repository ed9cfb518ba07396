// Package fusion merges multiple sources' raw answers into one canonical
// record, optionally refined by a model cleanup pass.
package fusion

import (
	"sort"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/source"
)

// Result is the fused canonical record for one subject.
type Result struct {
	Fields        model.DeathFields
	WinningSource string
	Confidence    float64
	SourcesUsed   []string
}

// Fuse merges raw lookup results by reliability: for each canonical field
// the highest-reliability successful source supplying a value wins. Ties
// keep cascade priority order, never arrival order, because the input
// slice preserves cascade order and the sort is stable.
func Fuse(results []*source.LookupResult) *Result {
	ranked := make([]*source.LookupResult, 0, len(results))
	for _, r := range results {
		if r != nil && r.Success {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Reliability > ranked[j].Reliability
	})

	out := &Result{
		Fields: model.DeathFields{FieldConfidence: make(map[string]model.Confidence)},
	}
	used := make(map[string]bool)

	takeString := func(key string, set func(string)) {
		for _, r := range ranked {
			if v := stringValue(r.Fields[key]); v != "" {
				set(v)
				out.Fields.FieldConfidence[key] = model.ConfidenceFromScore(r.Confidence)
				used[r.Source] = true
				if key == source.FieldCauseOfDeath {
					out.WinningSource = r.Source
					out.Confidence = r.Confidence
				}
				return
			}
		}
	}
	takeList := func(key string, set func([]string)) {
		for _, r := range ranked {
			if v := stringList(r.Fields[key]); len(v) > 0 {
				set(v)
				out.Fields.FieldConfidence[key] = model.ConfidenceFromScore(r.Confidence)
				used[r.Source] = true
				return
			}
		}
	}

	takeString(source.FieldCauseOfDeath, func(v string) { out.Fields.CauseOfDeath = v })
	takeString(source.FieldCauseDetails, func(v string) { out.Fields.CauseDetails = v })
	takeString(source.FieldCircumstances, func(v string) { out.Fields.Circumstances = v })
	takeString(source.FieldLocation, func(v string) { out.Fields.Location = v })
	takeList(source.FieldNotableFactors, func(v []string) { out.Fields.NotableFactors = v })
	takeList(source.FieldRelatedPeople, func(v []string) { out.Fields.RelatedPeople = v })

	if out.Confidence == 0 {
		for _, r := range ranked {
			if used[r.Source] && r.Confidence > out.Confidence {
				out.Confidence = r.Confidence
			}
		}
	}
	if !out.Fields.IsEmpty() {
		out.Fields.Confidence = model.ConfidenceFromScore(out.Confidence)
	}
	out.Fields.HasDetailedInfo = out.Fields.CauseDetails != "" || out.Fields.Circumstances != ""

	for _, r := range ranked {
		if used[r.Source] {
			out.SourcesUsed = append(out.SourcesUsed, r.Source)
		}
	}
	return out
}

// stringValue extracts a non-empty string from a raw field value.
func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// stringList extracts a string slice from a raw field value, accepting
// either []string or the []any that json.Unmarshal produces.
func stringList(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		var out []string
		for _, item := range vv {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
