package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKmKnownDistance(t *testing.T) {
	// Roughly 1 degree of latitude is ~111.2 km.
	a := Point{LatDeg: 0, LonDeg: 0}
	b := Point{LatDeg: 1, LonDeg: 0}
	d := HaversineKm(a, b)
	assert.InDelta(t, 111.19, d, 0.5)
}

func TestHaversineKmZeroForSamePoint(t *testing.T) {
	p := Point{LatDeg: 45.5, LonDeg: 12.3, ElevM: 100}
	assert.InDelta(t, 0, HaversineKm(p, p), 1e-9)
}

func TestCumulativeDistanceKmMonotonic(t *testing.T) {
	points := []Point{
		{LatDeg: 0, LonDeg: 0},
		{LatDeg: 0.001, LonDeg: 0},
		{LatDeg: 0.002, LonDeg: 0},
		{LatDeg: 0.002, LonDeg: 0.001},
	}
	cum := CumulativeDistanceKm(points)
	require := assert.New(t)
	require.Len(cum, 4)
	require.Equal(0.0, cum[0])
	for i := 1; i < len(cum); i++ {
		require.GreaterOrEqual(cum[i], cum[i-1])
	}
}

func TestSmoothElevationsPreservesFlat(t *testing.T) {
	points := make([]Point, 11)
	for i := range points {
		points[i] = Point{ElevM: 1000}
	}
	smoothed := SmoothElevations(points, 5)
	for _, e := range smoothed {
		assert.Equal(t, 1000.0, e)
	}
}

func TestSmoothElevationsEdgeShrinksWindow(t *testing.T) {
	points := []Point{{ElevM: 0}, {ElevM: 10}, {ElevM: 20}}
	smoothed := SmoothElevations(points, 5)
	// The end points have no neighbour on one side, so their centred window
	// is the point alone; the middle point averages all three.
	assert.InDelta(t, 0.0, smoothed[0], 1e-9)
	assert.InDelta(t, 10.0, smoothed[1], 1e-9)
	assert.InDelta(t, 20.0, smoothed[2], 1e-9)
}

func TestGradientPercentBasic(t *testing.T) {
	assert.InDelta(t, 20.0, GradientPercent(200, 1000), 1e-9)
	assert.InDelta(t, -10.0, GradientPercent(-100, 1000), 1e-9)
	assert.Equal(t, 0.0, GradientPercent(100, 0))
}

func TestGradientDegreesMatchesAtan(t *testing.T) {
	got := GradientDegrees(100) // 100% gradient == 45 degrees
	assert.InDelta(t, 45.0, got, 1e-9)
	assert.InDelta(t, 0.0, GradientDegrees(0), 1e-9)
	assert.True(t, math.Abs(GradientDegrees(-100)+45) < 1e-9)
}
