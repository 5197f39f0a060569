// Package threshold implements the ThresholdDetector: the per-segment
// run-vs-hike decision, in both its static and load-adaptive forms, and
// the learned-uphill-threshold estimator.
package threshold

import (
	"sort"

	"github.com/trailtime/core/pkg/segment"
)

// Decision is the run/hike call for one segment.
type Decision string

const (
	Run  Decision = "RUN"
	Hike Decision = "HIKE"
)

// DefaultUphillThresholdPercent / DefaultDownhillThresholdPercent are the
// static-mode defaults (spec §4.3).
const (
	DefaultUphillThresholdPercent   = 25.0
	DefaultDownhillThresholdPercent = -30.0
)

// AdaptiveClampLow / AdaptiveClampHigh bound the effective uphill
// threshold in load-adaptive mode.
const (
	AdaptiveClampLow  = 25.0
	AdaptiveClampHigh = 35.0
)

// Call is the outcome of a single threshold decision.
type Call struct {
	Decision   Decision
	Confidence float64
}

// DecideStatic applies the static-mode rule: hike if the gradient meets
// or exceeds the uphill threshold, or meets or falls below the downhill
// threshold; run otherwise. Confidence is 0.9 if the segment clears the
// threshold by 5 percentage points or more, else 0.7.
func DecideStatic(gradientPercent, uphillThreshold, downhillThreshold float64) Call {
	if gradientPercent >= uphillThreshold {
		return Call{Decision: Hike, Confidence: confidenceFor(gradientPercent - uphillThreshold)}
	}
	if gradientPercent <= downhillThreshold {
		return Call{Decision: Hike, Confidence: confidenceFor(downhillThreshold - gradientPercent)}
	}
	return Call{Decision: Run, Confidence: 0.9}
}

func confidenceFor(marginPercent float64) float64 {
	if marginPercent >= 5 {
		return 0.9
	}
	return 0.7
}

// EffectiveUphillThreshold computes the load-adaptive effective
// threshold for a given elapsed time and cumulative route distance,
// clamped to [AdaptiveClampLow, AdaptiveClampHigh].
func EffectiveUphillThreshold(base, elapsedH, totalKm float64) float64 {
	fatigueReduction := 0.0
	if elapsedH > 2 {
		fatigueReduction = (elapsedH - 2) * 1.5
		if fatigueReduction > 5 {
			fatigueReduction = 5
		}
	}
	distanceReduction := 0.0
	if totalKm > 50 {
		distanceReduction = (totalKm - 50) / 25
		if distanceReduction > 3 {
			distanceReduction = 3
		}
	}
	eff := base - fatigueReduction - distanceReduction
	if eff < AdaptiveClampLow {
		eff = AdaptiveClampLow
	}
	if eff > AdaptiveClampHigh {
		eff = AdaptiveClampHigh
	}
	return eff
}

// RoughSpeedKmh is the estimating speed used to advance elapsed time
// between adaptive threshold queries while walking a route (spec §4.3).
func RoughSpeedKmh(d Decision) float64 {
	if d == Run {
		return 9.0
	}
	return 4.5
}

// DecideRoute walks a list of segments in load-adaptive mode, estimating
// elapsed time with RoughSpeedKmh to feed the next threshold query, and
// returns one Call per segment.
func DecideRoute(segments []segment.MacroSegment, baseUphillThreshold, downhillThreshold float64) []Call {
	calls := make([]Call, len(segments))
	elapsedH := 0.0
	totalKm := 0.0
	for _, s := range segments {
		totalKm += s.DistanceKm
	}

	cumulativeKm := 0.0
	for i, s := range segments {
		cumulativeKm += s.DistanceKm
		effUphill := EffectiveUphillThreshold(baseUphillThreshold, elapsedH, cumulativeKm)
		call := DecideStatic(s.GradientPercent(), effUphill, downhillThreshold)
		calls[i] = call
		elapsedH += s.DistanceKm / RoughSpeedKmh(call.Decision)
	}
	return calls
}

// UphillSplit is the minimal shape the learner needs from a historical
// uphill split.
type UphillSplit struct {
	GradientPercent float64
	PaceMinPerKm    float64
}

// MinUphillSplitsForLearning is the minimum sample size required before
// LearnUphillThreshold will produce an estimate.
const MinUphillSplitsForLearning = 10

// LearnUphillThreshold finds the gradient at which d(pace)/d(gradient)
// is maximal among splits with gradient > 5%, i.e. the point where pace
// degrades fastest per additional percent of gradient — the empirical
// "this is where running stops being worth it" inflection. Requires at
// least MinUphillSplitsForLearning qualifying splits.
func LearnUphillThreshold(splits []UphillSplit) (threshold float64, ok bool) {
	var steep []UphillSplit
	for _, s := range splits {
		if s.GradientPercent > 5 {
			steep = append(steep, s)
		}
	}
	if len(steep) < MinUphillSplitsForLearning {
		return 0, false
	}

	sort.Slice(steep, func(i, j int) bool {
		return steep[i].GradientPercent < steep[j].GradientPercent
	})

	bestSlope := -1.0
	bestGradient := 0.0
	for i := 1; i < len(steep); i++ {
		dGrad := steep[i].GradientPercent - steep[i-1].GradientPercent
		if dGrad <= 0 {
			continue
		}
		dPace := steep[i].PaceMinPerKm - steep[i-1].PaceMinPerKm
		slope := dPace / dGrad
		if slope > bestSlope {
			bestSlope = slope
			bestGradient = (steep[i].GradientPercent + steep[i-1].GradientPercent) / 2
		}
	}

	if bestSlope < 0 {
		return 0, false
	}

	if bestGradient < AdaptiveClampLow {
		bestGradient = AdaptiveClampLow
	}
	if bestGradient > AdaptiveClampHigh {
		bestGradient = AdaptiveClampHigh
	}
	return bestGradient, true
}
