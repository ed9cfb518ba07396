package model

import "time"

// Confidence is the coarse trust level assigned to an enriched field.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceFromScore maps a numeric confidence score to a tier.
func ConfidenceFromScore(score float64) Confidence {
	switch {
	case score >= 0.7:
		return ConfidenceHigh
	case score >= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Valid reports whether c is a known confidence tier.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Subject is a deceased person from the IMDb name dataset, plus the
// enrichment columns maintained by this pipeline.
type Subject struct {
	PersonID  int    `json:"person_id"`
	Name      string `json:"name"`
	BirthYear int    `json:"birth_year,omitempty"`
	DeathYear int    `json:"death_year,omitempty"`

	Death      DeathFields `json:"death"`
	EnrichedAt *time.Time  `json:"enriched_at,omitempty"`
}

// DeathFields holds the canonical enrichment fields for one subject. The
// same shape is used for staging drafts and for the production columns on
// the subjects table.
type DeathFields struct {
	CauseOfDeath    string                `json:"cause_of_death,omitempty"`
	CauseDetails    string                `json:"cause_details,omitempty"`
	Circumstances   string                `json:"circumstances,omitempty"`
	Location        string                `json:"location,omitempty"`
	NotableFactors  []string              `json:"notable_factors,omitempty"`
	RelatedPeople   []string              `json:"related_people,omitempty"`
	Confidence      Confidence            `json:"confidence,omitempty"`
	FieldConfidence map[string]Confidence `json:"field_confidence,omitempty"`
	HasDetailedInfo bool                  `json:"has_detailed_info,omitempty"`
}

// IsEmpty reports whether no enrichment field carries a value.
func (d DeathFields) IsEmpty() bool {
	return d.CauseOfDeath == "" &&
		d.CauseDetails == "" &&
		d.Circumstances == "" &&
		d.Location == "" &&
		len(d.NotableFactors) == 0 &&
		len(d.RelatedPeople) == 0
}

// Coalesce merges d over fallback, field by field. A field keeps the value
// from d when d supplies one and otherwise falls back; an empty value in d
// never clobbers a populated fallback. The HasDetailedInfo flag is sticky:
// once true in either input it stays true.
func (d DeathFields) Coalesce(fallback DeathFields) DeathFields {
	out := d

	if out.CauseOfDeath == "" {
		out.CauseOfDeath = fallback.CauseOfDeath
	}
	if out.CauseDetails == "" {
		out.CauseDetails = fallback.CauseDetails
	}
	if out.Circumstances == "" {
		out.Circumstances = fallback.Circumstances
	}
	if out.Location == "" {
		out.Location = fallback.Location
	}
	if len(out.NotableFactors) == 0 {
		out.NotableFactors = fallback.NotableFactors
	}
	if len(out.RelatedPeople) == 0 {
		out.RelatedPeople = fallback.RelatedPeople
	}
	if out.Confidence == "" {
		out.Confidence = fallback.Confidence
	}
	out.HasDetailedInfo = d.HasDetailedInfo || fallback.HasDetailedInfo

	if len(fallback.FieldConfidence) > 0 {
		merged := make(map[string]Confidence, len(fallback.FieldConfidence))
		for k, v := range fallback.FieldConfidence {
			merged[k] = v
		}
		for k, v := range d.FieldConfidence {
			merged[k] = v
		}
		out.FieldConfidence = merged
	}

	return out
}
