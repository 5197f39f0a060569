// Package pace implements the gradient-indexed speed/pace models:
// Tobler's hiking function, Naismith's rule with the Langmuir descent
// correction, Minetti's energy-cost tables and the empirical Strava
// grade-adjusted-pace table, plus a single dispatcher over a tagged
// variant so callers never switch on a calculator's concrete type
// (spec §9 "Dispatch over pace models").
package pace

import (
	"fmt"
	"math"

	"github.com/trailtime/core/pkg/segment"
)

// Method names a pace/time calculator.
type Method string

const (
	MethodTobler               Method = "tobler"
	MethodNaismith             Method = "naismith"
	MethodToblerPersonalized   Method = "tobler_personalized"
	MethodNaismithPersonalized Method = "naismith_personalized"
	MethodGAPStrava            Method = "gap_strava"
	MethodGAPMinetti           Method = "gap_minetti"
	MethodGAPStravaMinetti     Method = "gap_strava_minetti"
	MethodPersonalizedRun      Method = "personalized_run"
)

// Result is the common output of every calculator.
type Result struct {
	MethodName        Method
	EffectiveSpeedKmh float64
	TimeHours         float64
	Formula           string
}

// ToblerSpeedKmh implements Tobler's hiking function: speed peaks at
// 6 km/h at a -5% gradient.
func ToblerSpeedKmh(gradientPercent float64) float64 {
	gd := gradientPercent / 100
	return 6 * math.Exp(-3.5*math.Abs(gd+0.05))
}

// Tobler returns the Tobler time estimate for a segment, after applying
// profileMultiplier (fatigue, personalisation scaling, etc.) to the
// computed time.
func Tobler(seg segment.MacroSegment, profileMultiplier float64) Result {
	speed := ToblerSpeedKmh(seg.GradientPercent())
	timeH := 0.0
	if speed > 0 {
		timeH = seg.DistanceKm / speed
	}
	timeH *= profileMultiplier
	return Result{
		MethodName:        MethodTobler,
		EffectiveSpeedKmh: speed,
		TimeHours:         timeH,
		Formula:           fmt.Sprintf("6*exp(-3.5*|%.3f+0.05|) km/h", seg.GradientPercent()/100),
	}
}

// NaismithBaseSpeedKmh is the flat-ground speed Naismith's rule assumes.
const NaismithBaseSpeedKmh = 5.0

// NaismithClimbHoursPer600m is the additional time added per 600m of
// ascent.
const NaismithClimbHoursPer600m = 1.0

// LangmuirLowDeg / LangmuirHighDeg bound the Langmuir descent-correction
// bands: below LangmuirLowDeg no correction applies; from LangmuirLowDeg
// up to and including LangmuirHighDeg the Langmuir term is subtracted;
// above LangmuirHighDeg it is added.
const (
	LangmuirLowDeg  = 5.0
	LangmuirHighDeg = 12.0
)

// Naismith returns the Naismith+Langmuir time estimate for a segment.
func Naismith(seg segment.MacroSegment, profileMultiplier float64) Result {
	horizontalH := seg.DistanceKm / NaismithBaseSpeedKmh
	timeH := horizontalH
	formula := fmt.Sprintf("%.3f/%.0f h (horizontal)", seg.DistanceKm, NaismithBaseSpeedKmh)

	switch seg.Type {
	case segment.Ascent:
		climbH := seg.GainM / 600.0 * NaismithClimbHoursPer600m
		timeH += climbH
		formula += fmt.Sprintf(" + %.1f/600 h (climb)", seg.GainM)
	case segment.Descent:
		absDeg := math.Abs(seg.GradientDegrees())
		switch {
		case absDeg < LangmuirLowDeg:
			// no correction
		case absDeg <= LangmuirHighDeg:
			penalty := (seg.LossM / 300.0) * (10.0 / 60.0)
			timeH -= penalty
			formula += fmt.Sprintf(" - %.1f/300*10/60 h (Langmuir)", seg.LossM)
		default:
			penalty := (seg.LossM / 300.0) * (10.0 / 60.0)
			timeH += penalty
			formula += fmt.Sprintf(" + %.1f/300*10/60 h (Langmuir, steep)", seg.LossM)
		}
	}

	if timeH < 0 {
		timeH = 0
	}

	speed := 0.0
	if timeH > 0 {
		speed = seg.DistanceKm / timeH
	}

	timeH *= profileMultiplier

	return Result{
		MethodName:        MethodNaismith,
		EffectiveSpeedKmh: speed,
		TimeHours:         timeH,
		Formula:           formula,
	}
}

// minettiTable maps gradient percent (ascending) to an energy-cost
// ratio relative to flat ground, per Minetti's locomotion-cost model.
// Values between table rows are linearly interpolated.
var minettiTable = []struct {
	GradientPercent float64
	CostRatio       float64
}{
	{-45, 2.19}, {-40, 1.86}, {-35, 1.56}, {-30, 1.30},
	{-25, 1.06}, {-20, 0.87}, {-15, 0.73}, {-10, 0.64},
	{-5, 0.61}, {0, 1.00}, {5, 1.34}, {10, 1.70},
	{15, 2.10}, {20, 2.53}, {25, 3.00}, {30, 3.50},
	{35, 4.05}, {40, 4.63}, {45, 5.25},
}

// MinettiCostRatio interpolates the Minetti cost-ratio table at the
// given gradient percent, clamping to the table's endpoints.
func MinettiCostRatio(gradientPercent float64) float64 {
	return interpolateTable(minettiTable, gradientPercent)
}

// stravaGAPTable is the empirical Strava grade-adjusted-pace multiplier
// table: a multiplier applied to flat-ground pace (minutes/km), by
// gradient percent.
var stravaGAPTable = []struct {
	GradientPercent float64
	CostRatio       float64
}{
	{-30, 1.55}, {-25, 1.35}, {-20, 1.15}, {-15, 0.95},
	{-10, 0.85}, {-5, 0.80}, {0, 1.00}, {5, 1.25},
	{10, 1.55}, {15, 1.90}, {20, 2.30}, {25, 2.75}, {30, 3.25},
}

// StravaGAPCostRatio interpolates the Strava GAP table.
func StravaGAPCostRatio(gradientPercent float64) float64 {
	return interpolateTable(stravaGAPTable, gradientPercent)
}

type tableRow = struct {
	GradientPercent float64
	CostRatio       float64
}

func interpolateTable(table []tableRow, gradientPercent float64) float64 {
	if len(table) == 0 {
		return 1.0
	}
	if gradientPercent <= table[0].GradientPercent {
		return table[0].CostRatio
	}
	last := table[len(table)-1]
	if gradientPercent >= last.GradientPercent {
		return last.CostRatio
	}
	for i := 1; i < len(table); i++ {
		if gradientPercent <= table[i].GradientPercent {
			lo, hi := table[i-1], table[i]
			frac := (gradientPercent - lo.GradientPercent) / (hi.GradientPercent - lo.GradientPercent)
			return lo.CostRatio + frac*(hi.CostRatio-lo.CostRatio)
		}
	}
	return last.CostRatio
}

// GAPVariant selects which table(s) feed a grade-adjusted-pace
// calculation.
type GAPVariant string

const (
	GAPStrava        GAPVariant = "strava"
	GAPMinetti       GAPVariant = "minetti"
	GAPStravaMinetti GAPVariant = "strava_minetti"
)

// GAP computes a segment's time assuming it is run at baseFlatPaceMinPerKm
// (minutes per km on flat ground), adjusted by the selected variant's
// cost-ratio table. The Strava+Minetti hybrid applies the Minetti table
// on uphills and the Strava table on downhills/flat (spec §4.2).
func GAP(seg segment.MacroSegment, variant GAPVariant, baseFlatPaceMinPerKm, profileMultiplier float64) Result {
	g := seg.GradientPercent()

	var ratio float64
	var method Method
	switch variant {
	case GAPMinetti:
		ratio = MinettiCostRatio(g)
		method = MethodGAPMinetti
	case GAPStravaMinetti:
		method = MethodGAPStravaMinetti
		if g > 0 {
			ratio = MinettiCostRatio(g)
		} else {
			ratio = StravaGAPCostRatio(g)
		}
	default:
		ratio = StravaGAPCostRatio(g)
		method = MethodGAPStrava
	}

	adjustedPaceMinPerKm := baseFlatPaceMinPerKm * ratio
	timeH := 0.0
	if adjustedPaceMinPerKm > 0 {
		timeH = (adjustedPaceMinPerKm * seg.DistanceKm) / 60.0
	}
	timeH *= profileMultiplier

	speed := 0.0
	if adjustedPaceMinPerKm > 0 {
		speed = 60.0 / adjustedPaceMinPerKm
	}

	return Result{
		MethodName:        method,
		EffectiveSpeedKmh: speed,
		TimeHours:         timeH,
		Formula:           fmt.Sprintf("%.2f min/km * %.3f ratio(grad=%.1f%%)", baseFlatPaceMinPerKm, ratio, g),
	}
}

// TimeFromPaceMinPerKm is a small helper shared by the personaliser: it
// turns a pace (minutes per km) and a distance into hours.
func TimeFromPaceMinPerKm(paceMinPerKm, distanceKm float64) float64 {
	return (paceMinPerKm * distanceKm) / 60.0
}
