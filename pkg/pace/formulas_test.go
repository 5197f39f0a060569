package pace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trailtime/core/pkg/segment"
)

func seg(distanceKm, startElev, endElev float64, typ segment.Type) segment.MacroSegment {
	s := segment.MacroSegment{
		DistanceKm: distanceKm,
		StartElevM: startElev,
		EndElevM:   endElev,
		Type:       typ,
	}
	if endElev > startElev {
		s.GainM = endElev - startElev
	} else {
		s.LossM = startElev - endElev
	}
	return s
}

func TestToblerSpeedPeaksAtMinus5Percent(t *testing.T) {
	assert.InDelta(t, 6.0, ToblerSpeedKmh(-5), 1e-9)
}

func TestToblerSpeedMonotonicityProperty3(t *testing.T) {
	up := ToblerSpeedKmh(10)
	flat := ToblerSpeedKmh(0)
	down := ToblerSpeedKmh(-5)
	assert.Less(t, up, flat)
	assert.Less(t, flat, down)
}

func TestToblerFlatS1(t *testing.T) {
	s := seg(10, 1000, 1000, segment.FlatSeg)
	r := Tobler(s, 1.0)
	// Flat speed is 6*exp(-3.5*0.05) ≈ 5.037 km/h, so 10 km takes ≈ 1.985 h.
	assert.InDelta(t, 1.985, r.TimeHours, 0.01)
}

func TestNaismithFlatS1(t *testing.T) {
	s := seg(10, 1000, 1000, segment.FlatSeg)
	r := Naismith(s, 1.0)
	assert.InDelta(t, 2.0, r.TimeHours, 1e-9)
}

func TestNaismithAscentS2(t *testing.T) {
	s := seg(3, 1000, 1600, segment.Ascent)
	r := Naismith(s, 1.0)
	assert.InDelta(t, 1.60, r.TimeHours, 0.01)
}

func TestToblerAscentS2(t *testing.T) {
	s := seg(3, 1000, 1600, segment.Ascent)
	r := Tobler(s, 1.0)
	assert.InDelta(t, 1.20, r.TimeHours, 0.02)
}

func TestNaismithLangmuirSteepDescentS3(t *testing.T) {
	s := seg(2, 1600, 1000, segment.Descent)
	r := Naismith(s, 1.0)
	assert.InDelta(t, 0.733, r.TimeHours, 0.01)
}

func TestNaismithTimeMonotonicInGain(t *testing.T) {
	low := seg(3, 1000, 1300, segment.Ascent)
	high := seg(3, 1000, 1900, segment.Ascent)
	tLow := Naismith(low, 1.0).TimeHours
	tHigh := Naismith(high, 1.0).TimeHours
	assert.Less(t, tLow, tHigh)
}

func TestNaismithNoLangmuirCorrectionUnderFiveDegrees(t *testing.T) {
	// A very gentle, long descent stays below 5 degrees.
	s := seg(10, 1100, 1000, segment.Descent)
	r := Naismith(s, 1.0)
	assert.InDelta(t, 10.0/5.0, r.TimeHours, 0.01)
}

func TestMinettiCostRatioFlatIsOne(t *testing.T) {
	assert.InDelta(t, 1.0, MinettiCostRatio(0), 1e-9)
}

func TestMinettiCostRatioInterpolatesBetweenRows(t *testing.T) {
	r10 := MinettiCostRatio(10)
	r15 := MinettiCostRatio(15)
	r12 := MinettiCostRatio(12)
	assert.Greater(t, r12, r10)
	assert.Less(t, r12, r15)
}

func TestStravaGAPCostRatioFlatIsOne(t *testing.T) {
	assert.InDelta(t, 1.0, StravaGAPCostRatio(0), 1e-9)
}

func TestGAPStravaMinettiHybridUsesMinettiUphillStravaDownhill(t *testing.T) {
	up := seg(1, 1000, 1100, segment.Ascent)
	down := seg(1, 1100, 1000, segment.Descent)

	hybridUp := GAP(up, GAPStravaMinetti, 5.0, 1.0)
	pureMinettiUp := GAP(up, GAPMinetti, 5.0, 1.0)
	assert.InDelta(t, pureMinettiUp.TimeHours, hybridUp.TimeHours, 1e-9)

	hybridDown := GAP(down, GAPStravaMinetti, 5.0, 1.0)
	pureStravaDown := GAP(down, GAPStrava, 5.0, 1.0)
	assert.InDelta(t, pureStravaDown.TimeHours, hybridDown.TimeHours, 1e-9)
}

func TestGAPAppliesProfileMultiplier(t *testing.T) {
	flat := seg(5, 1000, 1000, segment.FlatSeg)
	base := GAP(flat, GAPStrava, 5.0, 1.0)
	doubled := GAP(flat, GAPStrava, 5.0, 2.0)
	assert.InDelta(t, base.TimeHours*2, doubled.TimeHours, 1e-9)
}
