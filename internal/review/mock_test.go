package review

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/store"
)

// fakeStore is an in-memory Store covering what the review workflow touches.
type fakeStore struct {
	subjects  map[int]model.Subject
	staging   map[string]*model.StagingRecord
	decisions []model.ReviewDecision

	decisionErr   error
	commitErr     error
	invalidateErr error
	invalidated   []int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subjects: make(map[int]model.Subject),
		staging:  make(map[string]*model.StagingRecord),
	}
}

func (f *fakeStore) addStaging(id, runID string, personID int, status model.StagingStatus, fields model.DeathFields) {
	f.staging[id] = &model.StagingRecord{
		ID:       id,
		RunID:    runID,
		PersonID: personID,
		Fields:   fields,
		Status:   status,
	}
}

func (f *fakeStore) Migrate(context.Context) error { return nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) ListSubjects(context.Context, store.SubjectFilter) ([]model.Subject, error) {
	return nil, nil
}

func (f *fakeStore) GetSubject(_ context.Context, personID int) (*model.Subject, error) {
	s, ok := f.subjects[personID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) UpsertSubjects(_ context.Context, subjects []model.Subject) (int, error) {
	for _, s := range subjects {
		f.subjects[s.PersonID] = s
	}
	return len(subjects), nil
}

func (f *fakeStore) CreateRun(context.Context, model.RunConfig, int) (*model.Run, error) {
	return nil, eris.New("not supported")
}

func (f *fakeStore) UpdateRunStats(context.Context, string, model.RunStats) error { return nil }

func (f *fakeStore) FinishRun(context.Context, string, model.RunStats, model.ExitReason) error {
	return nil
}

func (f *fakeStore) GetRun(context.Context, string) (*model.Run, error) { return nil, nil }

func (f *fakeStore) ListRuns(context.Context, int) ([]model.Run, error) { return nil, nil }

func (f *fakeStore) CreateAttempt(context.Context, *model.SubjectAttempt) error { return nil }

func (f *fakeStore) CreateStagingRecord(_ context.Context, rec *model.StagingRecord) error {
	cp := *rec
	f.staging[rec.ID] = &cp
	return nil
}

func (f *fakeStore) GetStagingRecord(_ context.Context, id string) (*model.StagingRecord, error) {
	rec, ok := f.staging[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) ListStaging(_ context.Context, filter store.StagingFilter) ([]model.StagingRecord, error) {
	var out []model.StagingRecord
	for _, rec := range f.staging {
		if filter.RunID != "" && rec.RunID != filter.RunID {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				if rec.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeStore) UpdateStagingStatus(_ context.Context, id string, status model.StagingStatus) error {
	rec, ok := f.staging[id]
	if !ok {
		return eris.Errorf("staging record not found: %s", id)
	}
	rec.Status = status
	return nil
}

func (f *fakeStore) UpdateStagingFields(_ context.Context, id string, fields model.DeathFields) error {
	rec, ok := f.staging[id]
	if !ok {
		return eris.Errorf("staging record not found: %s", id)
	}
	rec.Fields = fields
	return nil
}

func (f *fakeStore) CreateReviewDecision(_ context.Context, d *model.ReviewDecision) error {
	if f.decisionErr != nil {
		return f.decisionErr
	}
	f.decisions = append(f.decisions, *d)
	return nil
}

func (f *fakeStore) CommitRun(_ context.Context, runID, reviewer string) (*store.CommitResult, error) {
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	result := &store.CommitResult{}
	for _, rec := range f.staging {
		if rec.RunID != runID {
			continue
		}
		if rec.Status != model.StagingApproved && rec.Status != model.StagingEdited {
			continue
		}
		subj := f.subjects[rec.PersonID]
		subj.PersonID = rec.PersonID
		subj.Death = rec.Fields.Coalesce(subj.Death)
		now := time.Now().UTC()
		subj.EnrichedAt = &now
		f.subjects[rec.PersonID] = subj

		rec.Status = model.StagingCommitted
		result.Committed++
		result.PersonIDs = append(result.PersonIDs, rec.PersonID)
	}
	return result, nil
}

func (f *fakeStore) InvalidateSubjectCache(_ context.Context, personIDs []int) (int, error) {
	if f.invalidateErr != nil {
		return 0, f.invalidateErr
	}
	f.invalidated = append(f.invalidated, personIDs...)
	return len(personIDs), nil
}
