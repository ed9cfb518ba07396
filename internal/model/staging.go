package model

import "time"

// StagingStatus is the review state of a staged enrichment draft.
type StagingStatus string

const (
	StagingPending   StagingStatus = "pending"
	StagingApproved  StagingStatus = "approved"
	StagingEdited    StagingStatus = "edited"
	StagingRejected  StagingStatus = "rejected"
	StagingCommitted StagingStatus = "committed"
)

// StagingRecord is a draft enrichment result for one subject, awaiting
// human review. Records are never deleted; review history lives in
// ReviewDecision rows.
type StagingRecord struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id"`
	AttemptID   string        `json:"attempt_id"`
	PersonID    int           `json:"person_id"`
	SubjectName string        `json:"subject_name,omitempty"`
	Fields      DeathFields   `json:"fields"`
	RawSources  []byte        `json:"raw_sources,omitempty"`
	SourcesUsed []string      `json:"sources_used,omitempty"`
	Status      StagingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Decision is the action a reviewer took on a staging record.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionEdited   Decision = "manually_edited"
)

// ReviewDecision is an append-only audit record of one review action.
// Immutable once written except for CommittedAt, which the commit
// transaction stamps on the terminal decision.
type ReviewDecision struct {
	ID              string       `json:"id"`
	StagingID       string       `json:"staging_id"`
	Decision        Decision     `json:"decision"`
	Reviewer        string       `json:"reviewer"`
	Notes           string       `json:"notes,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	Original        *DeathFields `json:"original,omitempty"`
	Edited          *DeathFields `json:"edited,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	CommittedAt     *time.Time   `json:"committed_at,omitempty"`
}

// FieldEdits is a partial update to a staging record's fields. Nil members
// leave the current value untouched.
type FieldEdits struct {
	CauseOfDeath    *string     `json:"cause_of_death,omitempty"`
	CauseDetails    *string     `json:"cause_details,omitempty"`
	Circumstances   *string     `json:"circumstances,omitempty"`
	Location        *string     `json:"location,omitempty"`
	NotableFactors  *[]string   `json:"notable_factors,omitempty"`
	RelatedPeople   *[]string   `json:"related_people,omitempty"`
	Confidence      *Confidence `json:"confidence,omitempty"`
	HasDetailedInfo *bool       `json:"has_detailed_info,omitempty"`
}

// IsEmpty reports whether no field is being edited.
func (e FieldEdits) IsEmpty() bool {
	return e.CauseOfDeath == nil &&
		e.CauseDetails == nil &&
		e.Circumstances == nil &&
		e.Location == nil &&
		e.NotableFactors == nil &&
		e.RelatedPeople == nil &&
		e.Confidence == nil &&
		e.HasDetailedInfo == nil
}

// Apply returns fields with the supplied edits overlaid.
func (e FieldEdits) Apply(fields DeathFields) DeathFields {
	out := fields
	if e.CauseOfDeath != nil {
		out.CauseOfDeath = *e.CauseOfDeath
	}
	if e.CauseDetails != nil {
		out.CauseDetails = *e.CauseDetails
	}
	if e.Circumstances != nil {
		out.Circumstances = *e.Circumstances
	}
	if e.Location != nil {
		out.Location = *e.Location
	}
	if e.NotableFactors != nil {
		out.NotableFactors = *e.NotableFactors
	}
	if e.RelatedPeople != nil {
		out.RelatedPeople = *e.RelatedPeople
	}
	if e.Confidence != nil {
		out.Confidence = *e.Confidence
	}
	if e.HasDetailedInfo != nil {
		out.HasDetailedInfo = *e.HasDetailedInfo
	}
	return out
}
