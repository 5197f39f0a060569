package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trailtime/core/pkg/fatigue"
	"github.com/trailtime/core/pkg/gradient"
	"github.com/trailtime/core/pkg/pace"
	"github.com/trailtime/core/pkg/personalize"
	"github.com/trailtime/core/pkg/profile"
	"github.com/trailtime/core/pkg/segment"
	"github.com/trailtime/core/pkg/threshold"
)

func flatSegments(n int, kmEach float64) []segment.MacroSegment {
	segs := make([]segment.MacroSegment, n)
	for i := 0; i < n; i++ {
		segs[i] = segment.MacroSegment{Ordinal: i + 1, Type: segment.FlatSeg, DistanceKm: kmEach}
	}
	return segs
}

func TestPredictHikingNaismithFlatRoute(t *testing.T) {
	segs := flatSegments(10, 1.0) // S1: flat 10km
	est := PredictHiking(segs, HikingNaismith, nil, nil)
	assert.InDelta(t, 2.0, est.TotalTimeHours, 1e-9) // 10km / 5km/h
	assert.Len(t, est.Segments, 10)
}

func TestPredictHikingToblerMatchesFormula(t *testing.T) {
	segs := []segment.MacroSegment{{Ordinal: 1, Type: segment.FlatSeg, DistanceKm: 5}}
	est := PredictHiking(segs, HikingTobler, nil, nil)
	expected := pace.Tobler(segs[0], 1.0).TimeHours
	assert.InDelta(t, expected, est.TotalTimeHours, 1e-9)
}

func TestPredictHikingPersonalizedFallsBackWithoutData(t *testing.T) {
	segs := flatSegments(1, 5.0)
	p := personalize.New(nil)
	est := PredictHiking(segs, HikingNaismithPersonalized, p, nil)
	expected := pace.Naismith(segs[0], 1.0).TimeHours
	assert.InDelta(t, expected, est.TotalTimeHours, 1e-9)
}

func TestPredictHikingPersonalizedUsesTableWhenAvailable(t *testing.T) {
	segs := flatSegments(1, 10.0)
	table := profile.Table{
		gradient.Flat: {AvgPaceMinPerKm: 12, SampleCount: 10, P50: 12, HasPercentiles: true},
	}
	p := personalize.New(table)
	est := PredictHiking(segs, HikingNaismithPersonalized, p, nil)
	assert.InDelta(t, pace.TimeFromPaceMinPerKm(12, 10.0), est.TotalTimeHours, 1e-9)
}

func TestPredictHikingFatigueIncreasesTotalOverLongRoute(t *testing.T) {
	segs := flatSegments(60, 1.0)
	noFatigue := PredictHiking(segs, HikingNaismith, nil, nil)
	m := fatigue.DefaultHiking()
	withFatigue := PredictHiking(segs, HikingNaismith, nil, &m)
	assert.Greater(t, withFatigue.TotalTimeHours, noFatigue.TotalTimeHours)
}

func TestPredictRunningStaticThresholdSplitsSegments(t *testing.T) {
	segs := []segment.MacroSegment{
		{Ordinal: 1, Type: segment.FlatSeg, DistanceKm: 5},
		{Ordinal: 2, Type: segment.Ascent, DistanceKm: 2, GainM: 600, StartElevM: 1000, EndElevM: 1600}, // 30% grade -> HIKE
	}
	cfg := RunningConfig{
		Variant:              pace.GAPStrava,
		BaseFlatPaceMinPerKm: 6.0,
		UphillThresholdPct:   threshold.DefaultUphillThresholdPercent,
		DownhillThresholdPct: threshold.DefaultDownhillThresholdPercent,
	}
	est := PredictRunning(segs, cfg)
	assert.Equal(t, threshold.Run, est.Segments[0].Decision)
	assert.Equal(t, threshold.Hike, est.Segments[1].Decision)
}

func TestPredictRunningAdaptiveThresholdUsesRouteAwareCalls(t *testing.T) {
	segs := flatSegments(50, 1.0)
	cfg := RunningConfig{
		Variant:              pace.GAPMinetti,
		BaseFlatPaceMinPerKm: 6.0,
		UphillThresholdPct:   30,
		DownhillThresholdPct: -30,
		AdaptiveThreshold:    true,
	}
	est := PredictRunning(segs, cfg)
	assert.Greater(t, est.TotalTimeHours, 0.0)
}

func mixedSegments() []segment.MacroSegment {
	return []segment.MacroSegment{
		{Ordinal: 1, Type: segment.FlatSeg, DistanceKm: 5},
		{Ordinal: 2, Type: segment.Ascent, DistanceKm: 2, GainM: 600, StartElevM: 1000, EndElevM: 1600}, // 30% grade -> HIKE
		{Ordinal: 3, Type: segment.FlatSeg, DistanceKm: 3},
	}
}

func TestPredictTrailRunProducesEveryTotal(t *testing.T) {
	pred := PredictTrailRun(mixedSegments(), TrailRunConfig{BaseFlatPaceMinPerKm: 6.0})

	for _, key := range []string{
		TotalAllRunStrava, TotalAllRunMinetti, TotalAllRunStravaMinetti, TotalCombined,
	} {
		assert.Contains(t, pred.Totals, key)
	}
	for _, v := range []pace.GAPVariant{pace.GAPStrava, pace.GAPMinetti, pace.GAPStravaMinetti} {
		assert.Contains(t, pred.Totals, "run_hike_"+string(v)+"_tobler")
		assert.Contains(t, pred.Totals, "run_hike_"+string(v)+"_naismith")
	}
	// No profile: no personalised totals.
	assert.NotContains(t, pred.Totals, "all_run_personalized_moderate")
}

func TestPredictTrailRunCombinedMatchesStravaToblerWithoutProfileOrFatigue(t *testing.T) {
	segs := mixedSegments()
	pred := PredictTrailRun(segs, TrailRunConfig{Variant: pace.GAPStrava, BaseFlatPaceMinPerKm: 6.0})
	assert.InDelta(t, pred.Totals["run_hike_strava_tobler"], pred.Combined.TotalTimeHours, 1e-9)
}

func TestPredictTrailRunSplitsDistanceByDecision(t *testing.T) {
	segs := mixedSegments()
	pred := PredictTrailRun(segs, TrailRunConfig{BaseFlatPaceMinPerKm: 6.0})
	assert.InDelta(t, 8.0, pred.RunningDistanceKm, 1e-9)
	assert.InDelta(t, 2.0, pred.HikingDistanceKm, 1e-9)
	assert.InDelta(t, 10.0, pred.TotalDistanceKm, 1e-9)
	assert.InDelta(t, pred.Combined.TotalTimeHours, pred.RunningTimeHours+pred.HikingTimeHours, 1e-9)
}

func TestPredictTrailRunPersonalizedTotalsPresentWithProfile(t *testing.T) {
	table := profile.Table{
		gradient.Flat: {AvgPaceMinPerKm: 5.5, SampleCount: 20, P25: 5.2, P50: 5.5, P75: 5.9, HasPercentiles: true},
	}
	cfg := TrailRunConfig{
		BaseFlatPaceMinPerKm: 6.0,
		Personaliser:         personalize.New(table),
	}
	pred := PredictTrailRun(mixedSegments(), cfg)

	for _, e := range []string{"race", "moderate", "easy"} {
		assert.Contains(t, pred.Totals, "all_run_personalized_"+e)
		assert.Contains(t, pred.Totals, "run_hike_personalized_"+e)
	}
	// Race pace (p25) must not be slower than easy pace (p75).
	assert.LessOrEqual(t, pred.Totals["all_run_personalized_race"], pred.Totals["all_run_personalized_easy"])
}

func TestPredictTrailRunFatigueLengthensCombined(t *testing.T) {
	segs := flatSegments(60, 1.0)
	base := PredictTrailRun(segs, TrailRunConfig{BaseFlatPaceMinPerKm: 10.0})
	m := fatigue.DefaultRunning()
	fatigued := PredictTrailRun(segs, TrailRunConfig{BaseFlatPaceMinPerKm: 10.0, Fatigue: &m})
	assert.Greater(t, fatigued.Combined.TotalTimeHours, base.Combined.TotalTimeHours)
}

func TestPredictHikeMethodSetDependsOnProfile(t *testing.T) {
	segs := flatSegments(5, 1.0)

	bare := PredictHike(segs, nil, nil)
	assert.Len(t, bare.Estimates, 2)
	assert.Contains(t, bare.Estimates, string(HikingTobler))
	assert.Contains(t, bare.Estimates, string(HikingNaismith))

	table := profile.Table{
		gradient.Flat: {AvgPaceMinPerKm: 12, SampleCount: 10, P50: 12, HasPercentiles: true},
	}
	personalised := PredictHike(segs, personalize.New(table), nil)
	assert.Len(t, personalised.Estimates, 4)
	assert.Contains(t, personalised.Estimates, string(HikingNaismithPersonalized))
}

func TestElevationImpactPercentZeroOnEmptyRoute(t *testing.T) {
	est := PredictHiking(nil, HikingNaismith, nil, nil)
	assert.Equal(t, 0.0, est.ElevationImpactPercent)
}
