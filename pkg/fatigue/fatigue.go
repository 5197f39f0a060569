// Package fatigue implements the FatigueModel: a time-and-gradient
// dependent multiplier applied to each segment's base pace-model time.
package fatigue

// Model holds the four tunable fatigue parameters (spec §4.4).
type Model struct {
	ThresholdH         float64
	LinearRate         float64
	QuadraticRate      float64
	DownhillMultiplier float64
}

// DefaultHiking returns the hiking fatigue defaults.
func DefaultHiking() Model {
	return Model{ThresholdH: 3.0, LinearRate: 0.03, QuadraticRate: 0.005, DownhillMultiplier: 1.0}
}

// DefaultRunning returns the running fatigue defaults, without route-length
// adaptation (see AdaptThresholdForRoute).
func DefaultRunning() Model {
	return Model{ThresholdH: 2.0, LinearRate: 0.05, QuadraticRate: 0.008, DownhillMultiplier: 1.5}
}

// AdaptThresholdForRoute adapts a runner's fatigue threshold to route
// length: routes of 100km+ get a 4.0h threshold, 50km+ get 3.0h,
// otherwise the model's threshold is left unchanged (spec §4.4).
func (m Model) AdaptThresholdForRoute(totalDistanceKm float64) Model {
	switch {
	case totalDistanceKm >= 100:
		m.ThresholdH = 4.0
	case totalDistanceKm >= 50:
		m.ThresholdH = 3.0
	}
	return m
}

// Multiplier returns the fatigue multiplier for a point in time given
// elapsed hours so far and the gradient percent of the segment being
// evaluated.
func (m Model) Multiplier(elapsedH, gradientPercent float64) float64 {
	extra := elapsedH - m.ThresholdH
	if extra <= 0 {
		return 1.0
	}
	base := 1 + m.LinearRate*extra + m.QuadraticRate*extra*extra
	if gradientPercent < -5 {
		base *= m.DownhillMultiplier
	}
	return base
}

// ApplyToSegment evaluates the multiplier at the segment's midpoint in
// time (cumulativeElapsedH + baseTimeH/2), applies it to baseTimeH, and
// returns the adjusted time along with the new cumulative elapsed time
// (spec §4.4 "Per-segment application").
func (m Model) ApplyToSegment(cumulativeElapsedH, baseTimeH, gradientPercent float64) (adjustedTimeH, newCumulativeElapsedH float64) {
	midpointH := cumulativeElapsedH + baseTimeH/2
	mult := m.Multiplier(midpointH, gradientPercent)
	adjustedTimeH = baseTimeH * mult
	newCumulativeElapsedH = cumulativeElapsedH + adjustedTimeH
	return adjustedTimeH, newCumulativeElapsedH
}
