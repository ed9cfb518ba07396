package review

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/store"
)

// Workflow applies review actions to staging records. Every action writes
// an append-only ReviewDecision row before the status change, so a record
// can never sit in a commit-eligible status without its audit trail.
type Workflow struct {
	store store.Store
}

// NewWorkflow creates a Workflow over the given store.
func NewWorkflow(st store.Store) *Workflow {
	return &Workflow{store: st}
}

func (w *Workflow) loadForTransition(ctx context.Context, stagingID string, to model.StagingStatus) (*model.StagingRecord, error) {
	rec, err := w.store.GetStagingRecord(ctx, stagingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, eris.Errorf("review: staging record not found: %s", stagingID)
	}
	if !CanTransition(rec.Status, to) {
		return nil, &TransitionError{StagingID: stagingID, From: rec.Status, To: to}
	}
	return rec, nil
}

// Approve marks a staging record ready for commit.
func (w *Workflow) Approve(ctx context.Context, stagingID, reviewer, notes string) error {
	if _, err := w.loadForTransition(ctx, stagingID, model.StagingApproved); err != nil {
		return err
	}
	err := w.store.CreateReviewDecision(ctx, &model.ReviewDecision{
		StagingID: stagingID,
		Decision:  model.DecisionApproved,
		Reviewer:  reviewer,
		Notes:     notes,
	})
	if err != nil {
		return err
	}
	if err := w.store.UpdateStagingStatus(ctx, stagingID, model.StagingApproved); err != nil {
		return err
	}
	zap.L().Info("review: approved", zap.String("staging_id", stagingID), zap.String("reviewer", reviewer))
	return nil
}

// Reject marks a staging record as discarded. Rejection is terminal: the
// record and its sources stay queryable but the draft never commits.
func (w *Workflow) Reject(ctx context.Context, stagingID, reviewer, reason string) error {
	if _, err := w.loadForTransition(ctx, stagingID, model.StagingRejected); err != nil {
		return err
	}
	err := w.store.CreateReviewDecision(ctx, &model.ReviewDecision{
		StagingID:       stagingID,
		Decision:        model.DecisionRejected,
		Reviewer:        reviewer,
		RejectionReason: reason,
	})
	if err != nil {
		return err
	}
	if err := w.store.UpdateStagingStatus(ctx, stagingID, model.StagingRejected); err != nil {
		return err
	}
	zap.L().Info("review: rejected", zap.String("staging_id", stagingID), zap.String("reviewer", reviewer), zap.String("reason", reason))
	return nil
}

// Edit overlays partial field edits onto a staging record and marks it
// edited, which makes it commit-eligible. The decision row keeps before
// and after snapshots.
func (w *Workflow) Edit(ctx context.Context, stagingID, reviewer string, edits model.FieldEdits, notes string) error {
	if edits.IsEmpty() {
		return eris.New("review: no edits supplied")
	}
	rec, err := w.loadForTransition(ctx, stagingID, model.StagingEdited)
	if err != nil {
		return err
	}

	original := rec.Fields
	updated := edits.Apply(rec.Fields)

	err = w.store.CreateReviewDecision(ctx, &model.ReviewDecision{
		StagingID: stagingID,
		Decision:  model.DecisionEdited,
		Reviewer:  reviewer,
		Notes:     notes,
		Original:  &original,
		Edited:    &updated,
	})
	if err != nil {
		return err
	}
	if err := w.store.UpdateStagingFields(ctx, stagingID, updated); err != nil {
		return err
	}
	if err := w.store.UpdateStagingStatus(ctx, stagingID, model.StagingEdited); err != nil {
		return err
	}
	zap.L().Info("review: edited", zap.String("staging_id", stagingID), zap.String("reviewer", reviewer))
	return nil
}

// Commit promotes a run's approved and edited records into the subjects
// table, then invalidates cached API responses for the touched subjects.
// Cache invalidation runs after the transaction lands; a failure there is
// logged, never rolled back into the commit.
func (w *Workflow) Commit(ctx context.Context, runID, reviewer string) (*store.CommitResult, error) {
	result, err := w.store.CommitRun(ctx, runID, reviewer)
	if err != nil {
		return nil, err
	}
	if result.Committed == 0 {
		zap.L().Info("review: nothing to commit", zap.String("run_id", runID))
		return result, nil
	}

	if n, err := w.store.InvalidateSubjectCache(ctx, result.PersonIDs); err != nil {
		zap.L().Warn("review: cache invalidation failed", zap.String("run_id", runID), zap.Error(err))
	} else if n > 0 {
		zap.L().Debug("review: cache invalidated", zap.Int("entries", n))
	}

	zap.L().Info("review: committed",
		zap.String("run_id", runID),
		zap.String("reviewer", reviewer),
		zap.Int("records", result.Committed),
	)
	return result, nil
}
