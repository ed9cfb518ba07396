package enrich

import (
	"fmt"
	"sync"

	"github.com/deadonfilm/deadonfilm/internal/model"
)

// maxRecordedErrors caps the error sample kept on the run record. The full
// detail lives on the per-subject attempt rows.
const maxRecordedErrors = 25

// Bookkeeper aggregates run statistics as subjects complete rather than in
// a final pass, so an aborted run still reports correct partials. Safe for
// concurrent use by the worker pool.
type Bookkeeper struct {
	mu    sync.Mutex
	stats model.RunStats
}

// NewBookkeeper starts the tally for a run over the given subject count.
func NewBookkeeper(subjectsQueried int) *Bookkeeper {
	return &Bookkeeper{stats: model.RunStats{
		SubjectsQueried: subjectsQueried,
		CostBySource:    make(map[string]float64),
	}}
}

// Record folds one completed subject attempt into the running totals.
func (b *Bookkeeper) Record(att *model.SubjectAttempt) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.SubjectsProcessed++
	if att.Enriched {
		b.stats.SubjectsEnriched++
	}
	b.stats.TotalCostUSD += att.CostUSD
	b.stats.PagesFetched += att.PagesFetched
	for _, sa := range att.SourcesAttempted {
		if sa.CostUSD > 0 {
			b.stats.CostBySource[sa.Source] += sa.CostUSD
		}
	}
	if att.Error != "" {
		b.stats.ErrorCount++
		if len(b.stats.Errors) < maxRecordedErrors {
			b.stats.Errors = append(b.stats.Errors, fmt.Sprintf("person %d: %s", att.PersonID, att.Error))
		}
	}
	if b.stats.SubjectsProcessed > 0 {
		b.stats.FillRate = float64(b.stats.SubjectsEnriched) / float64(b.stats.SubjectsProcessed) * 100
	}
}

// ChargeExtra attributes cost that happened outside the cascade, like the
// cleanup model call.
func (b *Bookkeeper) ChargeExtra(source string, amountUSD float64) {
	if amountUSD <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.CostBySource[source] += amountUSD
}

// Snapshot returns a copy safe to persist while workers keep recording.
func (b *Bookkeeper) Snapshot() model.RunStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.stats
	out.CostBySource = make(map[string]float64, len(b.stats.CostBySource))
	for k, v := range b.stats.CostBySource {
		out.CostBySource[k] = v
	}
	out.Errors = append([]string(nil), b.stats.Errors...)
	return out
}
