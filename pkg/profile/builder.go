package profile

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/gradient"
	"github.com/trailtime/core/pkg/threshold"
)

// IQRFenceMultiplier is the outlier fence width used when trimming a
// bucket's pace samples before computing percentiles (spec §4.7 step 5).
const IQRFenceMultiplier = 1.5

// MinSamplesForPercentiles is the minimum post-outlier-removal sample
// count required to compute P25/P50/P75 for a bucket; below this only
// the mean is reported.
const MinSamplesForPercentiles = 4

// RunnerPaceBandMinPerKm / HikerPaceBandMinPerKm are the physiologically
// plausible pace bounds used to drop clearly-corrupt splits before
// bucketing (spec §4.7 step 1).
var (
	RunnerPaceBandMinPerKm = [2]float64{2.5, 30.0}
	HikerPaceBandMinPerKm  = [2]float64{4.0, 25.0}
)

// rawSplit is the minimal shape the builder consumes from an
// activity.Split once it's been attributed to a parent activity.
type rawSplit struct {
	gradientPercent float64
	paceMinPerKm    float64
}

// ProfileBuilder rebuilds HikingProfile/RunProfile snapshots from a
// user's synced activities and splits.
type ProfileBuilder struct {
	// Now is substituted in tests; defaults to time.Now when nil.
	Now func() time.Time
}

func (b *ProfileBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// RebuildHiking implements spec §4.7 for hiking-type activities: filter,
// bucket, remove outliers, compute percentiles, derive vertical_ability
// and aggregate totals.
func (b *ProfileBuilder) RebuildHiking(userID string, activities []activity.Activity) HikingProfile {
	splits, agg := collectSplits(activities, func(t activity.Type) bool { return t.IsHiking() }, HikerPaceBandMinPerKm)

	table := buildTable(splits)
	profile := HikingProfile{
		UserID:           userID,
		Paces:            table,
		Aggregate:        agg,
		VerticalAbility:  verticalAbility(table),
		LastCalculatedAt: b.now(),
	}
	return profile
}

// RebuildRunning implements spec §4.7 for running-type activities, plus
// the walk-threshold auto-detection step (step 8).
func (b *ProfileBuilder) RebuildRunning(userID string, activities []activity.Activity) RunProfile {
	splits, agg := collectSplits(activities, func(t activity.Type) bool { return t.IsRunning() }, RunnerPaceBandMinPerKm)

	table := buildTable(splits)
	walkThreshold, _ := threshold.LearnUphillThreshold(uphillSplitsFor(splits))

	return RunProfile{
		UserID:               userID,
		Paces:                table,
		Aggregate:            agg,
		WalkThresholdPercent: walkThreshold,
		LastCalculatedAt:     b.now(),
	}
}

// collectSplits filters activities down to the ones matching typeFilter,
// drops splits with no usable pace/gradient or outside the
// physiological band, and returns the surviving samples plus aggregate
// totals over ALL matching activities (the aggregate is unaffected by
// split-level filtering, spec §4.7 step 9).
func collectSplits(activities []activity.Activity, typeFilter func(activity.Type) bool, paceBand [2]float64) ([]rawSplit, Aggregate) {
	var agg Aggregate
	var out []rawSplit

	for _, a := range activities {
		if !typeFilter(a.Type) {
			continue
		}
		agg.TotalActivitiesAnalysed++
		agg.TotalTypeActivities++
		agg.TotalDistanceKm += a.DistanceM / 1000.0
		agg.TotalElevationM += a.ElevationGainM

		for _, s := range a.Splits {
			if s.DistanceM <= 0 || s.MovingTimeS <= 0 {
				continue
			}
			pace := s.PaceMinPerKm()
			if pace < paceBand[0] || pace > paceBand[1] {
				continue
			}
			out = append(out, rawSplit{gradientPercent: s.GradientPercent(), paceMinPerKm: pace})
		}
	}
	return out, agg
}

// buildTable buckets splits into the 11-bin taxonomy, removes IQR
// outliers per bucket, and computes the mean plus percentiles (when
// enough samples survive).
func buildTable(splits []rawSplit) Table {
	buckets := map[gradient.Category11][]float64{}
	for _, s := range splits {
		cat := gradient.Classify11(s.gradientPercent)
		buckets[cat] = append(buckets[cat], s.paceMinPerKm)
	}

	table := Table{}
	for cat, paces := range buckets {
		table[cat] = statsForBucket(paces)
	}
	return table
}

func statsForBucket(paces []float64) CategoryStats {
	sorted := append([]float64(nil), paces...)
	sort.Float64s(sorted)

	trimmed := removeIQROutliers(sorted)
	if len(trimmed) == 0 {
		trimmed = sorted
	}

	stats := CategoryStats{
		AvgPaceMinPerKm: mean(trimmed),
		SampleCount:     len(trimmed),
	}

	if len(trimmed) >= MinSamplesForPercentiles {
		stats.P25 = stat.Quantile(0.25, stat.Empirical, trimmed, nil)
		stats.P50 = stat.Quantile(0.50, stat.Empirical, trimmed, nil)
		stats.P75 = stat.Quantile(0.75, stat.Empirical, trimmed, nil)
		stats.HasPercentiles = true
	}
	return stats
}

// removeIQROutliers drops values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
// sorted must already be ascending.
func removeIQROutliers(sorted []float64) []float64 {
	if len(sorted) < MinSamplesForPercentiles {
		return sorted
	}
	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	low := q1 - IQRFenceMultiplier*iqr
	high := q3 + IQRFenceMultiplier*iqr

	out := make([]float64, 0, len(sorted))
	for _, v := range sorted {
		if v >= low && v <= high {
			out = append(out, v)
		}
	}
	return out
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// verticalAbility derives the hiker's climbing ability relative to flat
// pace (spec §3: vertical_ability = (uphill_pace/flat_pace)/1.5,
// default 1.0 when data is insufficient). Uses the moderate_up bucket
// as the representative uphill sample.
func verticalAbility(table Table) float64 {
	flat, hasFlat := table[gradient.Flat]
	up, hasUp := table[gradient.ModerateUp]
	if !hasFlat || !hasUp || flat.AvgPaceMinPerKm <= 0 || up.SampleCount == 0 {
		return 1.0
	}
	ratio := (up.AvgPaceMinPerKm / flat.AvgPaceMinPerKm) / 1.5
	if ratio <= 0 {
		return 1.0
	}
	return ratio
}

// uphillSplitsFor projects the builder's internal rawSplit samples into
// the shape threshold.LearnUphillThreshold expects.
func uphillSplitsFor(splits []rawSplit) []threshold.UphillSplit {
	out := make([]threshold.UphillSplit, 0, len(splits))
	for _, s := range splits {
		out = append(out, threshold.UphillSplit{GradientPercent: s.gradientPercent, PaceMinPerKm: s.paceMinPerKm})
	}
	return out
}
