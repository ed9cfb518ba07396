// Package source defines the lookup contract for death-information sources
// and the registry that orders them into a cascade.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/deadonfilm/deadonfilm/internal/model"
)

// Category groups sources by how they are paid for.
type Category string

const (
	CategoryFree Category = "free"
	CategoryPaid Category = "paid"
	CategoryAI   Category = "ai"
)

// categoryRank fixes the cascade priority order: free before paid, paid
// before AI.
var categoryRank = map[Category]int{
	CategoryFree: 0,
	CategoryPaid: 1,
	CategoryAI:   2,
}

// ParseCategories converts config strings into known categories, dropping
// anything unrecognized.
func ParseCategories(names []string) []Category {
	var out []Category
	for _, n := range names {
		c := Category(n)
		if _, ok := categoryRank[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Reliability is the coarse trust classification of a source with the
// numeric weight used during fusion.
type Reliability struct {
	Tier  string  `json:"tier"`
	Score float64 `json:"score"`
}

// Standard reliability tiers. User-generated content sits at the bottom
// regardless of how confident the extraction looks.
var (
	ReliabilityEncyclopedia   = Reliability{Tier: "encyclopedia", Score: 0.95}
	ReliabilityNewsArchive    = Reliability{Tier: "news_archive", Score: 0.90}
	ReliabilitySearchDigest   = Reliability{Tier: "search_digest", Score: 0.85}
	ReliabilityModelKnowledge = Reliability{Tier: "model_knowledge", Score: 0.80}
	ReliabilityUserGenerated  = Reliability{Tier: "user_generated", Score: 0.65}
)

// LookupResult is the outcome of one source call for one subject. It is
// consumed immediately by the scheduler and fusion stage, then archived in
// the staging record's raw-sources snapshot.
type LookupResult struct {
	Source      string         `json:"source"`
	Category    Category       `json:"category"`
	Reliability float64        `json:"reliability"`
	Success     bool           `json:"success"`
	Confidence  float64        `json:"confidence"`
	CostUSD     float64        `json:"cost_usd"`
	Elapsed     time.Duration  `json:"elapsed_ns"`
	URL         string         `json:"url,omitempty"`
	Query       string         `json:"query,omitempty"`
	Domain      string         `json:"domain,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	RawText     string         `json:"raw_text,omitempty"`
	Err         string         `json:"error,omitempty"`
}

// Source is one pluggable lookup capability. Implementations must be safe
// for sequential reuse across subjects; the scheduler never calls the same
// source concurrently within a cascade.
type Source interface {
	Name() string
	Category() Category
	Reliability() Reliability
	// EstimatedCostPerQuery is the pre-call cost estimate the budget
	// governor checks before the call is made.
	EstimatedCostPerQuery() float64
	// MinDelay is the minimum spacing between two requests to this source.
	MinDelay() time.Duration
	// RequestTimeout bounds a single Lookup call.
	RequestTimeout() time.Duration
	Lookup(ctx context.Context, subject model.Subject) (*LookupResult, error)
}

// BlockedError signals that a source refused access (bot detection, login
// wall, hard 403). It is recorded distinctly from ordinary failures so the
// audit trail can tell a block from "no data found".
type BlockedError struct {
	Source string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("source %s: access blocked: %s", e.Source, e.Reason)
}

// IsBlocked reports whether err carries a BlockedError.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}

// Registry holds the registered sources and produces the cascade ordering.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Source
	inOrder []string
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Source)}
}

// Register adds a source. Re-registering a name replaces the previous
// instance but keeps its original position.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[s.Name()]; !ok {
		r.inOrder = append(r.inOrder, s.Name())
	}
	r.byName[s.Name()] = s
}

// Get returns a source by name, or nil.
func (r *Registry) Get(name string) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Names returns all registered source names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.inOrder))
	copy(out, r.inOrder)
	return out
}

// Cascade returns the sources eligible under the given categories in
// cascade priority order: free before paid before AI, and within a
// category cheaper before costlier. Registration order breaks ties so the
// ordering is deterministic.
func (r *Registry) Cascade(categories []Category) []Source {
	eligible := make(map[Category]bool, len(categories))
	for _, c := range categories {
		eligible[c] = true
	}

	r.mu.RLock()
	var out []Source
	for _, name := range r.inOrder {
		s := r.byName[name]
		if len(eligible) == 0 || eligible[s.Category()] {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := categoryRank[out[i].Category()], categoryRank[out[j].Category()]
		if ri != rj {
			return ri < rj
		}
		return out[i].EstimatedCostPerQuery() < out[j].EstimatedCostPerQuery()
	})
	return out
}
