// Package geo provides the low-level geographic primitives the rest of
// the prediction engine is built on: great-circle distance, elevation
// smoothing and gradient conversions.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for Haversine distance.
const EarthRadiusKm = 6371.0

// MinPointDistanceM is the smallest inter-point distance considered
// meaningful; shorter hops are skipped to avoid division by zero when
// computing step gradients.
const MinPointDistanceM = 1.0

// Point is a single GPS fix: latitude/longitude in decimal degrees and
// elevation in metres.
type Point struct {
	LatDeg float64
	LonDeg float64
	ElevM  float64
}

// HaversineKm returns the great-circle distance between two points, in
// kilometres.
func HaversineKm(a, b Point) float64 {
	lat1 := a.LatDeg * math.Pi / 180
	lat2 := b.LatDeg * math.Pi / 180
	dLat := (b.LatDeg - a.LatDeg) * math.Pi / 180
	dLon := (b.LonDeg - a.LonDeg) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// CumulativeDistanceKm returns, for a track of n points, a slice of n
// cumulative distances in km, where element 0 is always 0.
func CumulativeDistanceKm(points []Point) []float64 {
	cum := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cum[i] = cum[i-1] + HaversineKm(points[i-1], points[i])
	}
	return cum
}

// SmoothElevations applies a centred moving average of the given window
// (odd, e.g. 5) to the elevation series. Near either edge the window
// shrinks symmetrically to the widest one still centred on the point (the
// end points average only themselves), so the output has the same length
// as the input and a linear elevation profile passes through unchanged.
func SmoothElevations(points []Point, window int) []float64 {
	n := len(points)
	out := make([]float64, n)
	if window < 1 {
		window = 1
	}
	half := window / 2
	for i := 0; i < n; i++ {
		h := half
		if i < h {
			h = i
		}
		if n-1-i < h {
			h = n - 1 - i
		}
		sum := 0.0
		for j := i - h; j <= i+h; j++ {
			sum += points[j].ElevM
		}
		out[i] = sum / float64(2*h+1)
	}
	return out
}

// GradientPercent returns the signed gradient, as a percentage, of a
// rise over a horizontal run given in metres. A zero or negative run
// returns 0 to avoid a divide-by-zero; callers are expected to have
// already filtered sub-metre hops via MinPointDistanceM.
func GradientPercent(riseM, runM float64) float64 {
	if runM <= 0 {
		return 0
	}
	return riseM / runM * 100
}

// GradientDegrees converts a percentage gradient (rise/run * 100) into
// an angle in degrees.
func GradientDegrees(gradientPercent float64) float64 {
	return math.Atan(gradientPercent/100) * 180 / math.Pi
}
