// Package store persists subjects, runs, staged enrichment results and
// review decisions. Two drivers exist: postgres for production and sqlite
// for local single-file use. Both speak the same Store interface.
package store

import (
	"context"

	"github.com/deadonfilm/deadonfilm/internal/model"
)

// SubjectFilter narrows ListSubjects.
type SubjectFilter struct {
	PersonIDs []int
	// MissingOnly keeps only subjects that have never been enriched.
	MissingOnly bool
	Limit       int
}

// StagingFilter narrows ListStaging.
type StagingFilter struct {
	RunID    string
	Statuses []model.StagingStatus
	Limit    int
}

// CommitResult reports what a commit transaction promoted.
type CommitResult struct {
	Committed int
	PersonIDs []int
}

// Store is the persistence boundary for the whole pipeline.
type Store interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Subjects
	ListSubjects(ctx context.Context, f SubjectFilter) ([]model.Subject, error)
	GetSubject(ctx context.Context, personID int) (*model.Subject, error)
	UpsertSubjects(ctx context.Context, subjects []model.Subject) (int, error)

	// Runs
	CreateRun(ctx context.Context, cfg model.RunConfig, subjectsQueried int) (*model.Run, error)
	UpdateRunStats(ctx context.Context, runID string, stats model.RunStats) error
	FinishRun(ctx context.Context, runID string, stats model.RunStats, reason model.ExitReason) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Per-subject attempt audit trail
	CreateAttempt(ctx context.Context, att *model.SubjectAttempt) error

	// Staging and review
	CreateStagingRecord(ctx context.Context, rec *model.StagingRecord) error
	GetStagingRecord(ctx context.Context, id string) (*model.StagingRecord, error)
	ListStaging(ctx context.Context, f StagingFilter) ([]model.StagingRecord, error)
	UpdateStagingStatus(ctx context.Context, id string, status model.StagingStatus) error
	UpdateStagingFields(ctx context.Context, id string, fields model.DeathFields) error
	CreateReviewDecision(ctx context.Context, d *model.ReviewDecision) error

	// CommitRun promotes a run's approved and edited staging records into
	// the live subjects table in one transaction. Committing a run with no
	// eligible records is a no-op returning a zero CommitResult.
	CommitRun(ctx context.Context, runID, reviewer string) (*CommitResult, error)

	// InvalidateSubjectCache drops cached API responses for the given
	// subjects. Called after a commit lands, outside the transaction.
	InvalidateSubjectCache(ctx context.Context, personIDs []int) (int, error)
}
