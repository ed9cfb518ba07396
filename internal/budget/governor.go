// Package budget enforces per-subject and per-run spend ceilings.
package budget

import (
	"errors"
	"fmt"
	"sync"
)

// LimitType identifies which ceiling was (or would be) breached.
type LimitType string

const (
	LimitPerSubject LimitType = "per_subject"
	LimitPerRun     LimitType = "per_run"
)

// LimitError reports a ceiling breach. A per-subject breach ends that
// subject's cascade; a per-run breach stops the batch from scheduling
// further subjects without discarding completed work.
type LimitError struct {
	LimitType  LimitType
	LimitUSD   float64
	CurrentUSD float64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("cost limit exceeded (%s): spent $%.4f of $%.4f", e.LimitType, e.CurrentUSD, e.LimitUSD)
}

// IsRunLimit reports whether err is a per-run ceiling breach.
func IsRunLimit(err error) bool {
	var le *LimitError
	return errors.As(err, &le) && le.LimitType == LimitPerRun
}

// IsSubjectLimit reports whether err is a per-subject ceiling breach.
func IsSubjectLimit(err error) bool {
	var le *LimitError
	return errors.As(err, &le) && le.LimitType == LimitPerSubject
}

// Governor tracks cumulative spend for one run. It is the only state
// shared across subject workers, so every method is mutex-guarded. Scope
// one Governor per run; never share across runs.
type Governor struct {
	mu              sync.Mutex
	perSubjectLimit float64 // 0 = unlimited
	totalLimit      float64 // 0 = unlimited
	bySubject       map[int]float64
	bySource        map[string]float64
	total           float64
}

// New creates a Governor with the given ceilings. A zero ceiling disables
// that check.
func New(perSubjectLimit, totalLimit float64) *Governor {
	return &Governor{
		perSubjectLimit: perSubjectLimit,
		totalLimit:      totalLimit,
		bySubject:       make(map[int]float64),
		bySource:        make(map[string]float64),
	}
}

// CanSpend checks whether spending estimated dollars on personID would
// breach either ceiling. The per-run check runs first: a fatal breach must
// not be masked by the softer per-subject stop.
func (g *Governor) CanSpend(personID int, estimated float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.totalLimit > 0 && g.total+estimated > g.totalLimit {
		return &LimitError{LimitType: LimitPerRun, LimitUSD: g.totalLimit, CurrentUSD: g.total}
	}
	if g.perSubjectLimit > 0 && g.bySubject[personID]+estimated > g.perSubjectLimit {
		return &LimitError{LimitType: LimitPerSubject, LimitUSD: g.perSubjectLimit, CurrentUSD: g.bySubject[personID]}
	}
	return nil
}

// Charge records actual spend against a subject and source.
func (g *Governor) Charge(personID int, sourceName string, amountUSD float64) {
	if amountUSD <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bySubject[personID] += amountUSD
	g.bySource[sourceName] += amountUSD
	g.total += amountUSD
}

// SubjectSpend returns the spend recorded for one subject.
func (g *Governor) SubjectSpend(personID int) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bySubject[personID]
}

// TotalSpend returns the run's cumulative spend.
func (g *Governor) TotalSpend() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}

// CostBySource returns a copy of the per-source spend breakdown.
func (g *Governor) CostBySource() map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]float64, len(g.bySource))
	for k, v := range g.bySource {
		out[k] = v
	}
	return out
}
