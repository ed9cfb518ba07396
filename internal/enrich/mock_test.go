package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/source"
	"github.com/deadonfilm/deadonfilm/internal/store"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	subjects  map[int]model.Subject
	runs      map[string]*model.Run
	attempts  []model.SubjectAttempt
	staging   map[string]*model.StagingRecord
	decisions []model.ReviewDecision

	failStaging bool
}

func newMemStore() *memStore {
	return &memStore{
		subjects: make(map[int]model.Subject),
		runs:     make(map[string]*model.Run),
		staging:  make(map[string]*model.StagingRecord),
	}
}

func (m *memStore) Migrate(context.Context) error { return nil }

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) Close() error { return nil }

func (m *memStore) ListSubjects(_ context.Context, f store.SubjectFilter) ([]model.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subject
	for _, s := range m.subjects {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) GetSubject(_ context.Context, personID int) (*model.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[personID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) UpsertSubjects(_ context.Context, subjects []model.Subject) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range subjects {
		m.subjects[s.PersonID] = s
	}
	return len(subjects), nil
}

func (m *memStore) CreateRun(_ context.Context, cfg model.RunConfig, subjectsQueried int) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &model.Run{
		ID:           uuid.NewString(),
		Config:       cfg,
		Stats:        model.RunStats{SubjectsQueried: subjectsQueried},
		ReviewStatus: model.ReviewPending,
		StartedAt:    time.Now().UTC(),
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *memStore) UpdateRunStats(_ context.Context, runID string, stats model.RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	run.Stats = stats
	return nil
}

func (m *memStore) FinishRun(_ context.Context, runID string, stats model.RunStats, reason model.ExitReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	now := time.Now().UTC()
	run.Stats = stats
	run.ExitReason = reason
	run.CompletedAt = &now
	return nil
}

func (m *memStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (m *memStore) ListRuns(_ context.Context, limit int) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Run
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) CreateAttempt(_ context.Context, att *model.SubjectAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, *att)
	return nil
}

func (m *memStore) CreateStagingRecord(_ context.Context, rec *model.StagingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStaging {
		return eris.New("staging write refused")
	}
	cp := *rec
	m.staging[rec.ID] = &cp
	return nil
}

func (m *memStore) GetStagingRecord(_ context.Context, id string) (*model.StagingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.staging[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) ListStaging(_ context.Context, f store.StagingFilter) ([]model.StagingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StagingRecord
	for _, rec := range m.staging {
		if f.RunID != "" && rec.RunID != f.RunID {
			continue
		}
		if len(f.Statuses) > 0 {
			match := false
			for _, s := range f.Statuses {
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

func (m *memStore) UpdateStagingStatus(_ context.Context, id string, status model.StagingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.staging[id]
	if !ok {
		return eris.Errorf("staging record not found: %s", id)
	}
	rec.Status = status
	return nil
}

func (m *memStore) UpdateStagingFields(_ context.Context, id string, fields model.DeathFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.staging[id]
	if !ok {
		return eris.Errorf("staging record not found: %s", id)
	}
	rec.Fields = fields
	return nil
}

func (m *memStore) CreateReviewDecision(_ context.Context, d *model.ReviewDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, *d)
	return nil
}

func (m *memStore) CommitRun(_ context.Context, runID, reviewer string) (*store.CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := &store.CommitResult{}
	for _, rec := range m.staging {
		if rec.RunID != runID {
			continue
		}
		if rec.Status != model.StagingApproved && rec.Status != model.StagingEdited {
			continue
		}
		subj := m.subjects[rec.PersonID]
		subj.PersonID = rec.PersonID
		subj.Death = rec.Fields.Coalesce(subj.Death)
		now := time.Now().UTC()
		subj.EnrichedAt = &now
		m.subjects[rec.PersonID] = subj

		rec.Status = model.StagingCommitted
		result.Committed++
		result.PersonIDs = append(result.PersonIDs, rec.PersonID)
	}
	if result.Committed > 0 {
		if run, ok := m.runs[runID]; ok {
			run.ReviewStatus = model.ReviewCommitted
		}
	}
	return result, nil
}

func (m *memStore) InvalidateSubjectCache(_ context.Context, personIDs []int) (int, error) {
	return len(personIDs), nil
}

func (m *memStore) stagedForRun(runID string) []*model.StagingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.StagingRecord
	for _, rec := range m.staging {
		if rec.RunID == runID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out
}

// stubSource is a scriptable source for pipeline tests.
type stubSource struct {
	name     string
	category source.Category
	cost     float64
	lookup   func(ctx context.Context, subject model.Subject) (*source.LookupResult, error)
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Category() source.Category { return s.category }

func (s *stubSource) Reliability() source.Reliability {
	return source.Reliability{Tier: "test", Score: 0.9}
}

func (s *stubSource) EstimatedCostPerQuery() float64 { return s.cost }

func (s *stubSource) MinDelay() time.Duration { return time.Millisecond }

func (s *stubSource) RequestTimeout() time.Duration { return time.Second }

func (s *stubSource) Lookup(ctx context.Context, subject model.Subject) (*source.LookupResult, error) {
	return s.lookup(ctx, subject)
}
