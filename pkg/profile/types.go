// Package profile builds and stores per-user pace profiles from their
// historical activity splits (the ProfileBuilder, spec §4.7) and holds
// the HikingProfile/RunProfile data model (spec §3).
package profile

import (
	"time"

	"github.com/trailtime/core/pkg/gradient"
)

// CategoryStats is one bucket of a PaceTable: the average pace, sample
// count and (when computable) percentile paces for one gradient
// category.
type CategoryStats struct {
	AvgPaceMinPerKm float64
	SampleCount     int
	P25             float64
	P50             float64
	P75             float64
	HasPercentiles  bool
}

// MinSamplesForPercentile is the sample count below which a category
// falls back to the base formula rather than a personalised pace (spec
// §4.5).
const MinSamplesForPercentile = 5

// Table is the canonical 11-bin PaceTable for a user.
type Table map[gradient.Category11]CategoryStats

// Valid reports whether the table has at least a usable flat pace
// (spec §4.5 validity predicate is evaluated together with the owning
// profile's activity count, see HikingProfile.Valid/RunProfile.Valid).
func (t Table) Valid() bool {
	flat, ok := t[gradient.Flat]
	return ok && flat.SampleCount > 0
}

// Legacy7 projects the 11-bin table down to the legacy 7-bin scalar
// fields via sample-weighted averaging (spec §3, §9: never compute
// paces in the 7-bin space, only project for display).
func (t Table) Legacy7() map[gradient.Category7]float64 {
	sumPace := map[gradient.Category7]float64{}
	sumWeight := map[gradient.Category7]int{}
	for cat, stats := range t {
		if stats.SampleCount == 0 {
			continue
		}
		legacy := gradient.Project(cat)
		sumPace[legacy] += stats.AvgPaceMinPerKm * float64(stats.SampleCount)
		sumWeight[legacy] += stats.SampleCount
	}
	out := map[gradient.Category7]float64{}
	for legacy, weight := range sumWeight {
		if weight > 0 {
			out[legacy] = sumPace[legacy] / float64(weight)
		}
	}
	return out
}

// Aggregate holds the activity/distance/elevation totals shared by both
// profile kinds.
type Aggregate struct {
	TotalActivitiesAnalysed int
	TotalTypeActivities     int // hike-specific or run-specific count
	TotalDistanceKm         float64
	TotalElevationM         float64
}

// HikingProfile is the per-user hiking PaceTable plus aggregates (spec §3).
type HikingProfile struct {
	UserID           string
	Paces            Table
	Aggregate        Aggregate
	VerticalAbility  float64
	LastCalculatedAt time.Time
}

// Valid implements the §4.5 validity predicate: a usable flat pace and
// at least one analysed activity.
func (p *HikingProfile) Valid() bool {
	return p != nil && p.Paces.Valid() && p.Aggregate.TotalActivitiesAnalysed >= 1
}

// RunProfile is the per-user running PaceTable plus aggregates and the
// auto-detected walk threshold (spec §3).
type RunProfile struct {
	UserID               string
	Paces                Table
	Aggregate            Aggregate
	WalkThresholdPercent float64 // 0 means "unset", consumers substitute DefaultWalkThresholdPercent
	LastCalculatedAt     time.Time
}

// DefaultWalkThresholdPercent is substituted by consumers when a
// RunProfile has no detected walk threshold (spec §4.7 step 8).
const DefaultWalkThresholdPercent = 25.0

// Valid implements the §4.5 validity predicate.
func (p *RunProfile) Valid() bool {
	return p != nil && p.Paces.Valid() && p.Aggregate.TotalActivitiesAnalysed >= 1
}

// EffectiveWalkThreshold returns the profile's detected walk threshold,
// or the default if unset.
func (p *RunProfile) EffectiveWalkThreshold() float64 {
	if p == nil || p.WalkThresholdPercent <= 0 {
		return DefaultWalkThresholdPercent
	}
	return p.WalkThresholdPercent
}
