package model

import "time"

// ExitReason records how a run ended.
type ExitReason string

const (
	ExitCompleted        ExitReason = "completed"
	ExitCostLimitReached ExitReason = "cost_limit_reached"
	ExitError            ExitReason = "error"
)

// ReviewStatus tracks whether a run's staged results have been promoted.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewCommitted ReviewStatus = "committed"
)

// RunConfig is the configuration snapshot captured when a run starts.
// Runs are reproducible from this snapshot alone.
type RunConfig struct {
	Categories          []string `json:"categories"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	StopOnMatch         bool     `json:"stop_on_match"`
	GatherAllSources    bool     `json:"gather_all_sources"`
	ClaudeCleanup       bool     `json:"claude_cleanup"`
	MaxCostPerSubject   float64  `json:"max_cost_per_subject_usd"`
	MaxTotalCost        float64  `json:"max_total_cost_usd"`
	Concurrency         int      `json:"concurrency"`
}

// RunStats aggregates per-subject outcomes. Updated as subjects complete,
// not in a final pass, so a cost-limit abort still has correct partials.
type RunStats struct {
	SubjectsQueried   int                `json:"subjects_queried"`
	SubjectsProcessed int                `json:"subjects_processed"`
	SubjectsEnriched  int                `json:"subjects_enriched"`
	FillRate          float64            `json:"fill_rate"`
	TotalCostUSD      float64            `json:"total_cost_usd"`
	CostBySource      map[string]float64 `json:"cost_by_source,omitempty"`
	PagesFetched      int                `json:"pages_fetched"`
	ErrorCount        int                `json:"error_count"`
	Errors            []string           `json:"errors,omitempty"`
}

// Run is one invocation of the batch enrichment pipeline.
type Run struct {
	ID           string       `json:"id"`
	Config       RunConfig    `json:"config"`
	Stats        RunStats     `json:"stats"`
	ExitReason   ExitReason   `json:"exit_reason,omitempty"`
	ReviewStatus ReviewStatus `json:"review_status"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// SourceAttempt records one source call within a subject's cascade,
// successful or not, in cascade order.
type SourceAttempt struct {
	Source     string  `json:"source"`
	Success    bool    `json:"success"`
	Blocked    bool    `json:"blocked,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	DurationMS int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// SubjectAttempt is one subject's outcome within a run.
type SubjectAttempt struct {
	ID               string          `json:"id"`
	RunID            string          `json:"run_id"`
	PersonID         int             `json:"person_id"`
	Enriched         bool            `json:"enriched"`
	CreatedStaging   bool            `json:"created_staging"`
	Confidence       float64         `json:"confidence,omitempty"`
	SourcesAttempted []SourceAttempt `json:"sources_attempted,omitempty"`
	WinningSource    string          `json:"winning_source,omitempty"`
	DurationMS       int64           `json:"duration_ms"`
	CostUSD          float64         `json:"cost_usd"`
	PagesFetched     int             `json:"pages_fetched,omitempty"`
	Error            string          `json:"error,omitempty"`
}
