package source

import (
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Settings overrides an adapter's built-in defaults. Zero values keep the
// default; this is what the sources section of config.yaml deserializes
// into.
type Settings struct {
	ReliabilityScore float64       `yaml:"reliability" mapstructure:"reliability"`
	CostPerQuery     float64       `yaml:"cost_per_query_usd" mapstructure:"cost_per_query_usd"`
	MinDelay         time.Duration `yaml:"min_delay" mapstructure:"min_delay"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Disabled         bool          `yaml:"disabled" mapstructure:"disabled"`
}

// UnmarshalYAML accepts Go duration strings ("500ms", "45s") for the
// delay and timeout fields.
func (s *Settings) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ReliabilityScore float64 `yaml:"reliability"`
		CostPerQuery     float64 `yaml:"cost_per_query_usd"`
		MinDelay         string  `yaml:"min_delay"`
		Timeout          string  `yaml:"timeout"`
		Disabled         bool    `yaml:"disabled"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	s.ReliabilityScore = raw.ReliabilityScore
	s.CostPerQuery = raw.CostPerQuery
	s.Disabled = raw.Disabled

	var err error
	if raw.MinDelay != "" {
		if s.MinDelay, err = time.ParseDuration(raw.MinDelay); err != nil {
			return eris.Wrapf(err, "source: parse min_delay %q", raw.MinDelay)
		}
	}
	if raw.Timeout != "" {
		if s.Timeout, err = time.ParseDuration(raw.Timeout); err != nil {
			return eris.Wrapf(err, "source: parse timeout %q", raw.Timeout)
		}
	}
	return nil
}

// meta carries the static metadata every adapter exposes.
type meta struct {
	name        string
	category    Category
	reliability Reliability
	cost        float64
	minDelay    time.Duration
	timeout     time.Duration
}

func newMeta(name string, category Category, reliability Reliability, cost float64, minDelay, timeout time.Duration, s Settings) meta {
	if s.ReliabilityScore > 0 {
		reliability.Score = s.ReliabilityScore
	}
	if s.CostPerQuery > 0 {
		cost = s.CostPerQuery
	}
	if s.MinDelay > 0 {
		minDelay = s.MinDelay
	}
	if s.Timeout > 0 {
		timeout = s.Timeout
	}
	return meta{
		name:        name,
		category:    category,
		reliability: reliability,
		cost:        cost,
		minDelay:    minDelay,
		timeout:     timeout,
	}
}

func (m meta) Name() string { return m.name }

func (m meta) Category() Category { return m.category }

func (m meta) Reliability() Reliability { return m.reliability }

func (m meta) EstimatedCostPerQuery() float64 { return m.cost }

func (m meta) MinDelay() time.Duration { return m.minDelay }

func (m meta) RequestTimeout() time.Duration { return m.timeout }

// result seeds a LookupResult with the adapter's identity.
func (m meta) result() *LookupResult {
	return &LookupResult{
		Source:      m.name,
		Category:    m.category,
		Reliability: m.reliability.Score,
	}
}
