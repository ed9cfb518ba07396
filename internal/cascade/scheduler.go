// Package cascade runs the ordered source attempt sequence for one subject.
package cascade

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/deadonfilm/deadonfilm/internal/budget"
	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/source"
)

// Options control one subject's cascade.
type Options struct {
	Categories          []source.Category
	ConfidenceThreshold float64
	// StopOnMatch halts the cascade at the first result meeting the
	// threshold. GatherAllSources disables early stopping regardless,
	// for runs where the cleanup pass wants maximum raw material.
	StopOnMatch      bool
	GatherAllSources bool
}

func (o Options) stopEarly() bool {
	return o.StopOnMatch && !o.GatherAllSources
}

// Bundle is the raw outcome of one subject's cascade: every result that
// came back plus the audit list of every source attempted, in order.
type Bundle struct {
	PersonID int
	Results  []*source.LookupResult
	Attempts []model.SourceAttempt
	CostUSD  float64
}

// Scheduler drives source adapters through the pacing and budget governors.
type Scheduler struct {
	registry *source.Registry
	pacer    *source.Governor
	budget   *budget.Governor
}

// New creates a Scheduler. The budget governor must be the run-scoped one.
func New(registry *source.Registry, pacer *source.Governor, bg *budget.Governor) *Scheduler {
	return &Scheduler{registry: registry, pacer: pacer, budget: bg}
}

// EnrichSubject runs the cascade for one subject. Source calls are
// sequential: they share the subject's cost budget and each source paces
// itself, so parallelism would buy nothing.
//
// Source failures and access blocks are recorded and the cascade moves on.
// A per-subject budget breach ends the cascade like source exhaustion. A
// per-run breach returns the partial bundle together with the LimitError;
// the caller stops scheduling further subjects.
func (s *Scheduler) EnrichSubject(ctx context.Context, subject model.Subject, opts Options) (*Bundle, error) {
	log := zap.L().With(zap.Int("person_id", subject.PersonID), zap.String("name", subject.Name))
	bundle := &Bundle{PersonID: subject.PersonID}

	for _, src := range s.registry.Cascade(opts.Categories) {
		if err := s.budget.CanSpend(subject.PersonID, src.EstimatedCostPerQuery()); err != nil {
			if budget.IsSubjectLimit(err) {
				log.Info("cascade: subject budget reached, stopping",
					zap.String("next_source", src.Name()),
					zap.Float64("spent_usd", s.budget.SubjectSpend(subject.PersonID)),
				)
				break
			}
			return bundle, err
		}

		start := time.Now()
		res, err := s.pacer.Do(ctx, src, subject)

		attempt := model.SourceAttempt{
			Source:     src.Name(),
			DurationMS: time.Since(start).Milliseconds(),
		}
		if res != nil {
			attempt.Confidence = res.Confidence
			attempt.CostUSD = res.CostUSD
			attempt.DurationMS = res.Elapsed.Milliseconds()
			s.budget.Charge(subject.PersonID, src.Name(), res.CostUSD)
			bundle.CostUSD += res.CostUSD
		}

		if err != nil {
			if source.IsBlocked(err) {
				attempt.Blocked = true
				log.Warn("cascade: source blocked", zap.String("source", src.Name()), zap.Error(err))
			} else {
				log.Warn("cascade: source failed", zap.String("source", src.Name()), zap.Error(err))
			}
			attempt.Error = err.Error()
			bundle.Attempts = append(bundle.Attempts, attempt)

			// A dead context fails every remaining source the same way;
			// stop instead of grinding through them.
			if ctx.Err() != nil {
				return bundle, ctx.Err()
			}
			continue
		}

		attempt.Success = res.Success
		if res.Err != "" {
			attempt.Error = res.Err
		}
		bundle.Attempts = append(bundle.Attempts, attempt)
		bundle.Results = append(bundle.Results, res)

		if opts.stopEarly() && res.Success && res.Confidence >= opts.ConfidenceThreshold {
			log.Debug("cascade: early stop on match",
				zap.String("source", src.Name()),
				zap.Float64("confidence", res.Confidence),
			)
			break
		}
	}

	return bundle, nil
}
