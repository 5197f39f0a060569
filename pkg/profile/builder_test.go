package profile

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/gradient"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

// flatHikeWithSplits builds one hiking activity containing n flat
// (0% gradient) splits, each distanceM long, walked at paceMinPerKm.
func flatHikeWithSplits(n int, paceMinPerKm float64) activity.Activity {
	splits := make([]activity.Split, n)
	for i := 0; i < n; i++ {
		movingTimeS := int(paceMinPerKm * 60)
		splits[i] = activity.Split{Ordinal: i, DistanceM: 1000, MovingTimeS: movingTimeS, ElevDiffM: 0}
	}
	return activity.Activity{
		ProviderActivityID: 1,
		Type:               activity.TypeHike,
		DistanceM:          float64(n) * 1000,
		Splits:             splits,
	}
}

// TestRebuildHikingSingleBucketS5 reproduces scenario S5: 12 flat splits
// feeding a single bucket. Expected avg ~5.33, sample_count after outlier
// trim is 10 (the two most extreme paces excluded), no walk threshold
// applies (hiking has none), percentiles computed.
func TestRebuildHikingSingleBucketS5(t *testing.T) {
	paces := []float64{5.0, 5.1, 5.2, 5.2, 5.3, 5.3, 5.4, 5.5, 5.6, 5.7, 12.0, 25.5}
	splits := make([]activity.Split, len(paces))
	for i, p := range paces {
		splits[i] = activity.Split{Ordinal: i, DistanceM: 1000, MovingTimeS: int(p * 60), ElevDiffM: 0}
	}
	a := activity.Activity{ProviderActivityID: 1, Type: activity.TypeHike, DistanceM: float64(len(paces)) * 1000, Splits: splits}

	b := &ProfileBuilder{Now: fixedNow}
	profile := b.RebuildHiking("u1", []activity.Activity{a})

	flat, ok := profile.Paces[gradient.Flat]
	assert.True(t, ok)
	assert.Equal(t, 10, flat.SampleCount)
	assert.InDelta(t, 5.32, flat.AvgPaceMinPerKm, 0.05)
	assert.True(t, flat.HasPercentiles)
	assert.InDelta(t, 5.2, flat.P25, 0.15)
	assert.InDelta(t, 5.3, flat.P50, 0.15)
	assert.InDelta(t, 5.5, flat.P75, 0.15)

	assert.Equal(t, 1, profile.Aggregate.TotalActivitiesAnalysed)
	assert.Equal(t, fixedNow(), profile.LastCalculatedAt)
}

func TestRebuildHikingDropsNonHikeActivities(t *testing.T) {
	run := activity.Activity{Type: activity.TypeRun, Splits: []activity.Split{{DistanceM: 1000, MovingTimeS: 300}}}
	b := &ProfileBuilder{Now: fixedNow}
	profile := b.RebuildHiking("u1", []activity.Activity{run})
	assert.Equal(t, 0, profile.Aggregate.TotalActivitiesAnalysed)
	assert.False(t, profile.Paces.Valid())
}

func TestRebuildHikingDropsOutOfBandPace(t *testing.T) {
	a := flatHikeWithSplits(1, 1.0) // implausibly fast for a hike -> dropped
	b := &ProfileBuilder{Now: fixedNow}
	profile := b.RebuildHiking("u1", []activity.Activity{a})
	assert.Equal(t, 1, profile.Aggregate.TotalActivitiesAnalysed) // aggregate unaffected by split filtering
	_, ok := profile.Paces[gradient.Flat]
	assert.False(t, ok)
}

func TestFewerThanFourSamplesSkipsPercentiles(t *testing.T) {
	a := flatHikeWithSplits(3, 6.0)
	b := &ProfileBuilder{Now: fixedNow}
	profile := b.RebuildHiking("u1", []activity.Activity{a})
	flat := profile.Paces[gradient.Flat]
	assert.Equal(t, 3, flat.SampleCount)
	assert.False(t, flat.HasPercentiles)
}

func TestVerticalAbilityDefaultsWithoutUphillData(t *testing.T) {
	a := flatHikeWithSplits(12, 6.0)
	b := &ProfileBuilder{Now: fixedNow}
	profile := b.RebuildHiking("u1", []activity.Activity{a})
	assert.Equal(t, 1.0, profile.VerticalAbility)
}

func TestLegacy7ProjectsSampleWeightedAverage(t *testing.T) {
	a := flatHikeWithSplits(12, 6.0)
	b := &ProfileBuilder{Now: fixedNow}
	profile := b.RebuildHiking("u1", []activity.Activity{a})
	legacy := profile.Paces.Legacy7()
	v, ok := legacy[gradient.Flat7]
	assert.True(t, ok)
	assert.InDelta(t, 6.0, v, 0.2)
}

func TestRebuildRunningDetectsWalkThreshold(t *testing.T) {
	var splits []activity.Split
	for g := 6.0; g <= 35; g += 2 {
		pace := 6.0 + 0.05*g
		if g > 25 {
			pace += (g - 25) * 0.6
		}
		elev := g * 10 // 1000m split -> elevDiffM = gradient% * 10
		splits = append(splits, activity.Split{DistanceM: 1000, MovingTimeS: int(pace * 60), ElevDiffM: elev})
	}
	a := activity.Activity{Type: activity.TypeRun, DistanceM: float64(len(splits)) * 1000, Splits: splits}

	b := &ProfileBuilder{Now: fixedNow}
	profile := b.RebuildRunning("u1", []activity.Activity{a})
	assert.Greater(t, profile.WalkThresholdPercent, 0.0)
	assert.Equal(t, profile.WalkThresholdPercent, profile.EffectiveWalkThreshold())
}

func TestRunProfileDefaultsWalkThresholdWhenUnset(t *testing.T) {
	p := RunProfile{}
	assert.Equal(t, DefaultWalkThresholdPercent, p.EffectiveWalkThreshold())
}

func TestProfileValidRequiresFlatBucketAndActivity(t *testing.T) {
	p := HikingProfile{}
	assert.False(t, p.Valid())
}

// TestRebuildIsDeterministic rebuilds the same activity set twice and
// diffs the resulting tables structurally; any nondeterminism in
// bucketing, trimming or quantile math shows up as a readable cmp diff.
func TestRebuildIsDeterministic(t *testing.T) {
	var splits []activity.Split
	for g := -20.0; g <= 20; g += 1.5 {
		pace := 6.0 + 0.08*g
		splits = append(splits, activity.Split{DistanceM: 1000, MovingTimeS: int(pace * 60), ElevDiffM: g * 10})
	}
	a := activity.Activity{Type: activity.TypeHike, DistanceM: float64(len(splits)) * 1000, Splits: splits}

	b := &ProfileBuilder{Now: fixedNow}
	first := b.RebuildHiking("u1", []activity.Activity{a})
	second := b.RebuildHiking("u1", []activity.Activity{a})

	if diff := cmp.Diff(first.Paces, second.Paces); diff != "" {
		t.Errorf("rebuilt pace tables differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Paces.Legacy7(), second.Paces.Legacy7()); diff != "" {
		t.Errorf("legacy projections differ (-first +second):\n%s", diff)
	}
}
