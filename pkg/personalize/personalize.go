// Package personalize implements the Personaliser: lookups into a
// user's PaceTable by gradient category and desired effort, with a
// mandatory fallback to the base formulas when a bucket lacks enough
// samples (spec §4.5).
package personalize

import (
	"github.com/trailtime/core/pkg/gradient"
	"github.com/trailtime/core/pkg/profile"
)

// Effort selects which percentile of a bucket's pace distribution to
// use for a personalised estimate.
type Effort string

const (
	EffortEasy     Effort = "easy"     // p75: slower, conservative
	EffortModerate Effort = "moderate" // p50: median
	EffortRace     Effort = "race"     // p25: faster, race-day pace
)

// Personaliser answers "what pace would this user run/hike at gradient
// g, for effort e" from their stored PaceTable, falling back to the
// caller-supplied base pace when the bucket is too thin.
type Personaliser struct {
	table profile.Table
}

// New wraps a PaceTable for lookups. A nil or empty table is valid and
// simply never has personalised data (Lookup always reports !ok).
func New(table profile.Table) *Personaliser {
	return &Personaliser{table: table}
}

// Result is a personalised pace lookup outcome.
type Result struct {
	PaceMinPerKm float64
	SampleCount  int
	Ok           bool // true when a personalised pace was used, false when the caller must fall back
}

// Lookup returns the personalised pace for the bucket containing
// gradientPercent at the requested effort, provided the bucket has at
// least profile.MinSamplesForPercentile samples. A bucket with enough
// samples but no computed percentiles answers with its average pace
// regardless of effort (spec §4.5 step 3). Otherwise Ok is false and
// the caller must use its own base-formula estimate at
// gradient.Midpoint(category) instead (spec §4.5 invariant 6).
func (p *Personaliser) Lookup(gradientPercent float64, effort Effort) Result {
	if p == nil || p.table == nil {
		return Result{}
	}
	cat := gradient.Classify11(gradientPercent)
	stats, ok := p.table[cat]
	if !ok || stats.SampleCount < profile.MinSamplesForPercentile {
		return Result{}
	}

	if !stats.HasPercentiles {
		return Result{PaceMinPerKm: stats.AvgPaceMinPerKm, SampleCount: stats.SampleCount, Ok: true}
	}

	pace := stats.P50
	switch effort {
	case EffortEasy:
		pace = stats.P75
	case EffortRace:
		pace = stats.P25
	}
	return Result{PaceMinPerKm: pace, SampleCount: stats.SampleCount, Ok: true}
}

// Valid reports whether the underlying table has any usable data at
// all (spec §4.5 validity predicate, table side).
func (p *Personaliser) Valid() bool {
	return p != nil && p.table.Valid()
}
