// Package predict orchestrates the Predictor: it combines the
// Segmenter's output with the pace formulas, the ThresholdDetector and
// an optional Personaliser/fatigue.Model into a single finish-time
// estimate, for both the hiking path and the multi-method trail-running
// path (spec §4.6).
package predict

import (
	"fmt"

	"github.com/trailtime/core/pkg/fatigue"
	"github.com/trailtime/core/pkg/pace"
	"github.com/trailtime/core/pkg/personalize"
	"github.com/trailtime/core/pkg/segment"
	"github.com/trailtime/core/pkg/threshold"
)

// SegmentEstimate is the per-segment contribution to an Estimate.
type SegmentEstimate struct {
	Ordinal    int
	DistanceKm float64
	TimeHours  float64
	Decision   threshold.Decision // "" when the method doesn't branch per segment
}

// Estimate is one finish-time prediction produced by a single method.
type Estimate struct {
	Method                 pace.Method
	TotalTimeHours         float64
	Segments               []SegmentEstimate
	ElevationImpactPercent float64
}

// HikingMethod selects which calculator backs a hiking estimate.
type HikingMethod string

const (
	HikingTobler               HikingMethod = "tobler"
	HikingNaismith             HikingMethod = "naismith"
	HikingToblerPersonalized   HikingMethod = "tobler_personalized"
	HikingNaismithPersonalized HikingMethod = "naismith_personalized"
)

// PredictHiking runs one hiking-path calculator across segments, with an
// optional Personaliser (used for the two *_personalized methods: when
// the Personaliser has no usable sample for a segment's bucket, the
// base formula is used for that segment, spec §4.5 invariant 6) and an
// optional fatigue model applied cumulatively across segments in order.
func PredictHiking(segments []segment.MacroSegment, method HikingMethod, personaliser *personalize.Personaliser, fatigueModel *fatigue.Model) Estimate {
	out := Estimate{Method: pace.Method(method)}
	cumElapsed := 0.0

	for _, seg := range segments {
		baseTimeH := hikingBaseTimeH(seg, method, personaliser)

		timeH := baseTimeH
		if fatigueModel != nil {
			var newCum float64
			timeH, newCum = fatigueModel.ApplyToSegment(cumElapsed, baseTimeH, seg.GradientPercent())
			cumElapsed = newCum
		} else {
			cumElapsed += baseTimeH
		}

		out.TotalTimeHours += timeH
		out.Segments = append(out.Segments, SegmentEstimate{Ordinal: seg.Ordinal, DistanceKm: seg.DistanceKm, TimeHours: timeH})
	}

	out.ElevationImpactPercent = elevationImpactPercent(segments, out.TotalTimeHours)
	return out
}

func hikingBaseTimeH(seg segment.MacroSegment, method HikingMethod, personaliser *personalize.Personaliser) float64 {
	switch method {
	case HikingTobler:
		return pace.Tobler(seg, 1.0).TimeHours
	case HikingNaismith:
		return pace.Naismith(seg, 1.0).TimeHours
	case HikingToblerPersonalized:
		if personaliser != nil {
			if r := personaliser.Lookup(seg.GradientPercent(), personalize.EffortModerate); r.Ok {
				return pace.TimeFromPaceMinPerKm(r.PaceMinPerKm, seg.DistanceKm)
			}
		}
		return pace.Tobler(seg, 1.0).TimeHours
	case HikingNaismithPersonalized:
		if personaliser != nil {
			if r := personaliser.Lookup(seg.GradientPercent(), personalize.EffortModerate); r.Ok {
				return pace.TimeFromPaceMinPerKm(r.PaceMinPerKm, seg.DistanceKm)
			}
		}
		return pace.Naismith(seg, 1.0).TimeHours
	default:
		return pace.Naismith(seg, 1.0).TimeHours
	}
}

// RunningConfig parameterizes the trail-running path: the GAP variant,
// the runner's baseline flat pace, an optional Personaliser at a chosen
// effort, the static/adaptive hike thresholds to apply per segment, and
// an optional fatigue model.
type RunningConfig struct {
	Variant              pace.GAPVariant
	BaseFlatPaceMinPerKm float64
	Personaliser         *personalize.Personaliser
	Effort               personalize.Effort
	UphillThresholdPct   float64
	DownhillThresholdPct float64
	AdaptiveThreshold    bool
	FatigueModel         *fatigue.Model
}

// PredictRunning runs the trail-running path: each segment is first
// classified RUN or HIKE by the ThresholdDetector (static or
// load-adaptive per cfg.AdaptiveThreshold), then estimated with the
// selected GAP variant (if RUN) or Naismith (if HIKE), personalised
// where the Personaliser has enough samples (spec §4.6).
func PredictRunning(segments []segment.MacroSegment, cfg RunningConfig) Estimate {
	out := Estimate{Method: pace.Method(fmt.Sprintf("%s+%s", cfg.Variant, "threshold"))}

	var calls []threshold.Call
	if cfg.AdaptiveThreshold {
		calls = threshold.DecideRoute(segments, cfg.UphillThresholdPct, cfg.DownhillThresholdPct)
	} else {
		calls = make([]threshold.Call, len(segments))
		for i, seg := range segments {
			calls[i] = threshold.DecideStatic(seg.GradientPercent(), cfg.UphillThresholdPct, cfg.DownhillThresholdPct)
		}
	}

	cumElapsed := 0.0
	for i, seg := range segments {
		decision := calls[i].Decision

		var baseTimeH float64
		if decision == threshold.Hike {
			baseTimeH = hikeLegTimeH(seg, cfg)
		} else {
			baseTimeH = runLegTimeH(seg, cfg)
		}

		timeH := baseTimeH
		if cfg.FatigueModel != nil {
			var newCum float64
			timeH, newCum = cfg.FatigueModel.ApplyToSegment(cumElapsed, baseTimeH, seg.GradientPercent())
			cumElapsed = newCum
		} else {
			cumElapsed += baseTimeH
		}

		out.TotalTimeHours += timeH
		out.Segments = append(out.Segments, SegmentEstimate{
			Ordinal: seg.Ordinal, DistanceKm: seg.DistanceKm, TimeHours: timeH, Decision: decision,
		})
	}

	out.ElevationImpactPercent = elevationImpactPercent(segments, out.TotalTimeHours)
	return out
}

func runLegTimeH(seg segment.MacroSegment, cfg RunningConfig) float64 {
	if cfg.Personaliser != nil {
		if r := cfg.Personaliser.Lookup(seg.GradientPercent(), cfg.Effort); r.Ok {
			return pace.TimeFromPaceMinPerKm(r.PaceMinPerKm, seg.DistanceKm)
		}
	}
	return pace.GAP(seg, cfg.Variant, cfg.BaseFlatPaceMinPerKm, 1.0).TimeHours
}

func hikeLegTimeH(seg segment.MacroSegment, cfg RunningConfig) float64 {
	if cfg.Personaliser != nil {
		if r := cfg.Personaliser.Lookup(seg.GradientPercent(), cfg.Effort); r.Ok {
			return pace.TimeFromPaceMinPerKm(r.PaceMinPerKm, seg.DistanceKm)
		}
	}
	return pace.Naismith(seg, 1.0).TimeHours
}

// HikePrediction is the full hiking-path output: one Estimate per
// method, personalised flavours included when the profile is usable.
type HikePrediction struct {
	Estimates              map[string]Estimate
	TotalDistanceKm        float64
	ElevationImpactPercent float64
}

// PredictHike runs the whole hiking path: Naismith and Tobler always,
// plus their personalised flavours when the Personaliser has a valid
// table. Each method's fatigue accumulation is fed independently (spec
// §4.6 hiking path).
func PredictHike(segments []segment.MacroSegment, personaliser *personalize.Personaliser, fatigueModel *fatigue.Model) HikePrediction {
	methods := []HikingMethod{HikingTobler, HikingNaismith}
	if personaliser.Valid() {
		methods = append(methods, HikingToblerPersonalized, HikingNaismithPersonalized)
	}

	out := HikePrediction{Estimates: map[string]Estimate{}}
	for _, m := range methods {
		est := PredictHiking(segments, m, personaliser, fatigueModel)
		out.Estimates[string(m)] = est
		out.ElevationImpactPercent = est.ElevationImpactPercent
	}
	for _, s := range segments {
		out.TotalDistanceKm += s.DistanceKm
	}
	return out
}

// Labels for the trail-running totals map (spec §4.6).
const (
	TotalAllRunStrava        = "all_run_strava"
	TotalAllRunMinetti       = "all_run_minetti"
	TotalAllRunStravaMinetti = "all_run_strava_minetti"
	TotalCombined            = "combined"
)

func allRunPersonalizedLabel(e personalize.Effort) string {
	return "all_run_personalized_" + string(e)
}

func runHikeLabel(v pace.GAPVariant, hikeSide string) string {
	return fmt.Sprintf("run_hike_%s_%s", v, hikeSide)
}

func runHikePersonalizedLabel(e personalize.Effort) string {
	return "run_hike_personalized_" + string(e)
}

var gapVariants = []pace.GAPVariant{pace.GAPStrava, pace.GAPMinetti, pace.GAPStravaMinetti}

var allRunLabels = map[pace.GAPVariant]string{
	pace.GAPStrava:        TotalAllRunStrava,
	pace.GAPMinetti:       TotalAllRunMinetti,
	pace.GAPStravaMinetti: TotalAllRunStravaMinetti,
}

var efforts = []personalize.Effort{personalize.EffortRace, personalize.EffortModerate, personalize.EffortEasy}

// TrailRunConfig parameterizes the full trail-running prediction.
// Variant selects the GAP table backing the primary combined estimate;
// Effort selects which percentile the combined estimate personalises
// to when a profile is available.
type TrailRunConfig struct {
	Variant              pace.GAPVariant
	BaseFlatPaceMinPerKm float64
	Personaliser         *personalize.Personaliser
	Effort               personalize.Effort
	UphillThresholdPct   float64
	DownhillThresholdPct float64
	AdaptiveThreshold    bool
	Fatigue              *fatigue.Model
}

// TrailRunPrediction is the full trail-running output surface: the
// always-run totals, the six run+hike combinations, the personalised
// totals where a profile exists, the primary combined estimate (with
// fatigue), and the run/hike distance and time split it implies.
type TrailRunPrediction struct {
	Totals                 map[string]float64
	Combined               Estimate
	RunningDistanceKm      float64
	RunningTimeHours       float64
	HikingDistanceKm       float64
	HikingTimeHours        float64
	TotalDistanceKm        float64
	ElevationImpactPercent float64
}

// PredictTrailRun runs the whole trail-running path (spec §4.6): every
// GAP variant as if always run, Tobler/Naismith as if always hiked,
// the six run+hike combinations, personalised totals at all three
// effort levels, and the primary combined estimate with fatigue applied
// segment by segment.
func PredictTrailRun(segments []segment.MacroSegment, cfg TrailRunConfig) TrailRunPrediction {
	if cfg.Variant == "" {
		cfg.Variant = pace.GAPStrava
	}
	if cfg.Effort == "" {
		cfg.Effort = personalize.EffortModerate
	}
	if cfg.UphillThresholdPct == 0 {
		cfg.UphillThresholdPct = threshold.DefaultUphillThresholdPercent
	}
	if cfg.DownhillThresholdPct == 0 {
		cfg.DownhillThresholdPct = threshold.DefaultDownhillThresholdPercent
	}

	personalised := cfg.Personaliser.Valid()

	var calls []threshold.Call
	if cfg.AdaptiveThreshold {
		calls = threshold.DecideRoute(segments, cfg.UphillThresholdPct, cfg.DownhillThresholdPct)
	} else {
		calls = make([]threshold.Call, len(segments))
		for i, seg := range segments {
			calls[i] = threshold.DecideStatic(seg.GradientPercent(), cfg.UphillThresholdPct, cfg.DownhillThresholdPct)
		}
	}

	out := TrailRunPrediction{Totals: map[string]float64{}}
	for _, s := range segments {
		out.TotalDistanceKm += s.DistanceKm
	}

	fatigueModel := cfg.Fatigue
	if fatigueModel != nil {
		adapted := fatigueModel.AdaptThresholdForRoute(out.TotalDistanceKm)
		fatigueModel = &adapted
	}

	// Per-segment base times for every method, accumulated into the
	// totals in a single walk. The combined estimate additionally feeds
	// the fatigue model its own cumulative elapsed time.
	cumCombined := 0.0
	for i, seg := range segments {
		g := seg.GradientPercent()
		decision := calls[i].Decision

		gapTimes := map[pace.GAPVariant]float64{}
		for _, v := range gapVariants {
			gapTimes[v] = pace.GAP(seg, v, cfg.BaseFlatPaceMinPerKm, 1.0).TimeHours
		}
		toblerH := pace.Tobler(seg, 1.0).TimeHours
		naismithH := pace.Naismith(seg, 1.0).TimeHours

		for _, v := range gapVariants {
			out.Totals[allRunLabels[v]] += gapTimes[v]

			runHikeH := gapTimes[v]
			if decision == threshold.Hike {
				runHikeH = toblerH
			}
			out.Totals[runHikeLabel(v, "tobler")] += runHikeH

			runHikeH = gapTimes[v]
			if decision == threshold.Hike {
				runHikeH = naismithH
			}
			out.Totals[runHikeLabel(v, "naismith")] += runHikeH
		}

		if personalised {
			for _, e := range efforts {
				r := cfg.Personaliser.Lookup(g, e)

				// All-run fallback is the chosen GAP variant; the
				// run+hike fallback keeps Tobler on hike segments.
				allRunH := gapTimes[cfg.Variant]
				runHikeH := allRunH
				if decision == threshold.Hike {
					runHikeH = toblerH
				}
				if r.Ok {
					h := pace.TimeFromPaceMinPerKm(r.PaceMinPerKm, seg.DistanceKm)
					allRunH, runHikeH = h, h
				}
				out.Totals[allRunPersonalizedLabel(e)] += allRunH
				out.Totals[runHikePersonalizedLabel(e)] += runHikeH
			}
		}

		// Primary combined estimate: personalised when available,
		// otherwise the chosen GAP variant for run segments and Tobler
		// for hike segments.
		baseH := gapTimes[cfg.Variant]
		if decision == threshold.Hike {
			baseH = toblerH
		}
		if personalised {
			if r := cfg.Personaliser.Lookup(g, cfg.Effort); r.Ok {
				baseH = pace.TimeFromPaceMinPerKm(r.PaceMinPerKm, seg.DistanceKm)
			}
		}

		adjH := baseH
		if fatigueModel != nil {
			adjH, cumCombined = fatigueModel.ApplyToSegment(cumCombined, baseH, g)
		} else {
			cumCombined += baseH
		}

		out.Combined.Segments = append(out.Combined.Segments, SegmentEstimate{
			Ordinal: seg.Ordinal, DistanceKm: seg.DistanceKm, TimeHours: adjH, Decision: decision,
		})
		out.Combined.TotalTimeHours += adjH

		if decision == threshold.Hike {
			out.HikingDistanceKm += seg.DistanceKm
			out.HikingTimeHours += adjH
		} else {
			out.RunningDistanceKm += seg.DistanceKm
			out.RunningTimeHours += adjH
		}
	}

	out.Combined.Method = pace.Method(TotalCombined)
	out.Totals[TotalCombined] = out.Combined.TotalTimeHours
	out.ElevationImpactPercent = elevationImpactPercent(segments, out.Combined.TotalTimeHours)
	out.Combined.ElevationImpactPercent = out.ElevationImpactPercent
	return out
}

// elevationImpactPercent compares the estimate's total time against a
// flat-equivalent time at Naismith's base speed, reporting how much
// elevation added (or, for heavily net-downhill routes, removed) as a
// percentage of the flat-equivalent time.
func elevationImpactPercent(segments []segment.MacroSegment, totalTimeH float64) float64 {
	totalKm := 0.0
	for _, s := range segments {
		totalKm += s.DistanceKm
	}
	if totalKm <= 0 {
		return 0
	}
	flatTimeH := totalKm / pace.NaismithBaseSpeedKmh
	if flatTimeH <= 0 {
		return 0
	}
	return (totalTimeH - flatTimeH) / flatTimeH * 100
}
