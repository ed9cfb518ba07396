// Package enrich drives batch enrichment runs: a worker pool feeds subjects
// through the source cascade, fuses the results, optionally runs the model
// cleanup pass, and stages drafts for review.
package enrich

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deadonfilm/deadonfilm/internal/budget"
	"github.com/deadonfilm/deadonfilm/internal/cascade"
	"github.com/deadonfilm/deadonfilm/internal/fusion"
	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/source"
	"github.com/deadonfilm/deadonfilm/internal/store"
)

const (
	defaultConcurrency = 2

	// cleanupCostKey is the ledger name for cleanup spend, kept distinct
	// from the claude source so the two model uses stay separable.
	cleanupCostKey = "claude_cleanup"

	// cleanupCostEstimate is the pre-call budget reservation for one
	// cleanup pass. Actual cost is charged from token usage afterward.
	cleanupCostEstimate = 0.02
)

// limitFlag is the shared stop signal a worker raises on a per-run budget
// breach. Raising it stops new subjects from being scheduled without
// cancelling the ones already in flight.
type limitFlag struct {
	v atomic.Bool
}

func (f *limitFlag) set()      { f.v.Store(true) }
func (f *limitFlag) hit() bool { return f.v.Load() }

// Pipeline runs enrichment batches against a source registry and store.
type Pipeline struct {
	store    store.Store
	registry *source.Registry
	synth    *fusion.Synthesizer
}

// New creates a Pipeline. synth may be nil when cleanup is unavailable;
// runs then fall back to plain reliability-ordered merges.
func New(st store.Store, registry *source.Registry, synth *fusion.Synthesizer) *Pipeline {
	return &Pipeline{store: st, registry: registry, synth: synth}
}

// RunBatch enriches the given subjects under cfg and returns the finished
// run record. A per-run cost breach stops scheduling new subjects, lets
// in-flight ones finish, and ends the run gracefully with exit reason
// cost_limit_reached; work staged before the breach is preserved.
func (p *Pipeline) RunBatch(ctx context.Context, subjects []model.Subject, cfg model.RunConfig) (*model.Run, error) {
	run, err := p.store.CreateRun(ctx, cfg, len(subjects))
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("enrich: run started",
		zap.Int("subjects", len(subjects)),
		zap.Strings("categories", cfg.Categories),
		zap.Float64("max_total_cost_usd", cfg.MaxTotalCost),
	)

	bg := budget.New(cfg.MaxCostPerSubject, cfg.MaxTotalCost)
	sched := cascade.New(p.registry, source.NewGovernor(), bg)
	book := NewBookkeeper(len(subjects))

	opts := cascade.Options{
		Categories:          source.ParseCategories(cfg.Categories),
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		StopOnMatch:         cfg.StopOnMatch,
		GatherAllSources:    cfg.GatherAllSources,
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var limiter limitFlag
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, subj := range subjects {
		if limiter.hit() || gctx.Err() != nil {
			break
		}
		subj := subj
		g.Go(func() error {
			att, runLimit := p.processSubject(gctx, run.ID, sched, bg, book, subj, cfg, opts)
			if runLimit {
				limiter.set()
			}
			book.Record(att)
			if err := p.store.CreateAttempt(gctx, att); err != nil {
				log.Warn("enrich: persist attempt failed", zap.Int("person_id", subj.PersonID), zap.Error(err))
			}
			if err := p.store.UpdateRunStats(gctx, run.ID, book.Snapshot()); err != nil {
				log.Debug("enrich: interim stats update failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := book.Snapshot()
	stats.TotalCostUSD = bg.TotalSpend()
	stats.CostBySource = bg.CostBySource()

	reason := model.ExitCompleted
	switch {
	case limiter.hit():
		reason = model.ExitCostLimitReached
	case ctx.Err() != nil:
		reason = model.ExitError
	}

	if err := p.store.FinishRun(context.WithoutCancel(ctx), run.ID, stats, reason); err != nil {
		return nil, eris.Wrap(err, "enrich: finish run")
	}
	run.Stats = stats
	run.ExitReason = reason
	now := time.Now().UTC()
	run.CompletedAt = &now

	log.Info("enrich: run finished",
		zap.String("exit_reason", string(reason)),
		zap.Int("processed", stats.SubjectsProcessed),
		zap.Int("enriched", stats.SubjectsEnriched),
		zap.Float64("fill_rate", stats.FillRate),
		zap.Float64("total_cost_usd", stats.TotalCostUSD),
	)
	return run, nil
}

// processSubject runs one subject end to end. The second return reports a
// per-run budget breach, which tells the pool to stop scheduling.
func (p *Pipeline) processSubject(ctx context.Context, runID string, sched *cascade.Scheduler, bg *budget.Governor, book *Bookkeeper, subj model.Subject, cfg model.RunConfig, opts cascade.Options) (*model.SubjectAttempt, bool) {
	log := zap.L().With(zap.String("run_id", runID), zap.Int("person_id", subj.PersonID))
	start := time.Now()
	att := &model.SubjectAttempt{
		ID:       uuid.NewString(),
		RunID:    runID,
		PersonID: subj.PersonID,
	}

	bundle, err := sched.EnrichSubject(ctx, subj, opts)
	att.SourcesAttempted = bundle.Attempts
	att.PagesFetched = len(bundle.Results)

	runLimit := false
	if err != nil {
		att.Error = err.Error()
		if budget.IsRunLimit(err) {
			runLimit = true
		}
	}

	fused := fusion.Fuse(bundle.Results)
	final := fused.Fields

	if err == nil && cfg.ClaudeCleanup && p.synth != nil && len(bundle.Results) > 0 {
		if cerr := bg.CanSpend(subj.PersonID, cleanupCostEstimate); cerr != nil {
			if budget.IsRunLimit(cerr) {
				runLimit = true
			}
			log.Info("enrich: skipping cleanup, budget reached", zap.Error(cerr))
		} else {
			clean, cost, serr := p.synth.Cleanup(ctx, subj, bundle.Results)
			bg.Charge(subj.PersonID, cleanupCostKey, cost)
			book.ChargeExtra(cleanupCostKey, cost)
			if serr != nil {
				log.Warn("enrich: cleanup failed, keeping merged fields", zap.Error(serr))
			} else {
				final = clean.Coalesce(fused.Fields)
			}
		}
	}

	att.CostUSD = bg.SubjectSpend(subj.PersonID)
	att.Confidence = fused.Confidence
	att.WinningSource = fused.WinningSource
	att.DurationMS = time.Since(start).Milliseconds()

	if att.Error == "" && !final.IsEmpty() {
		raw, merr := json.Marshal(bundle.Results)
		if merr != nil {
			raw = nil
		}
		rec := &model.StagingRecord{
			ID:          uuid.NewString(),
			RunID:       runID,
			AttemptID:   att.ID,
			PersonID:    subj.PersonID,
			SubjectName: subj.Name,
			Fields:      final,
			RawSources:  raw,
			SourcesUsed: fused.SourcesUsed,
			Status:      model.StagingPending,
		}
		if serr := p.store.CreateStagingRecord(ctx, rec); serr != nil {
			att.Error = eris.Wrap(serr, "enrich: stage result").Error()
		} else {
			att.Enriched = true
			att.CreatedStaging = true
			log.Info("enrich: staged draft",
				zap.String("staging_id", rec.ID),
				zap.String("winning_source", att.WinningSource),
				zap.Float64("confidence", att.Confidence),
			)
		}
	}

	return att, runLimit
}
