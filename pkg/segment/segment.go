// Package segment implements the Segmenter: it splits a GPS track into
// direction-coherent macro-segments and exposes the derived gradient
// attributes used by the rest of the prediction pipeline.
package segment

import (
	"github.com/trailtime/core/pkg/geo"
)

// Type classifies a MacroSegment by its net elevation direction.
type Type string

const (
	Ascent  Type = "ASCENT"
	Descent Type = "DESCENT"
	FlatSeg Type = "FLAT"
)

// MinSegmentKm is the minimum horizontal distance a non-terminal
// segment must accumulate before a direction reversal is allowed to
// close it (spec §3 invariant).
const MinSegmentKm = 0.3

// FlatBandPercent is the |gradient%| below which a segment (or a single
// walking step during detection) is considered FLAT rather than ASCENT
// or DESCENT.
const FlatBandPercent = 3.0

// MacroSegment is one direction-coherent stretch of a track.
type MacroSegment struct {
	Ordinal    int // 1-based
	Type       Type
	DistanceKm float64
	GainM      float64
	LossM      float64
	StartElevM float64
	EndElevM   float64
}

// ElevChangeM is the signed elevation change end-start.
func (s MacroSegment) ElevChangeM() float64 {
	return s.EndElevM - s.StartElevM
}

// GradientPercent is the signed average gradient of the segment.
func (s MacroSegment) GradientPercent() float64 {
	return geo.GradientPercent(s.ElevChangeM(), s.DistanceKm*1000)
}

// GradientDegrees is GradientPercent expressed as an angle.
func (s MacroSegment) GradientDegrees() float64 {
	return geo.GradientDegrees(s.GradientPercent())
}

// typeFromGradient derives a segment's Type from its actual signed
// gradient, never from the direction label used during detection (spec
// §3 invariant, §4.1 step 7, testable property 2).
func typeFromGradient(gradientPercent float64) Type {
	switch {
	case gradientPercent > FlatBandPercent:
		return Ascent
	case gradientPercent < -FlatBandPercent:
		return Descent
	default:
		return FlatSeg
	}
}

// direction is the step-level label used only to drive the walk in
// Segment(); it is intentionally coarser-grained than Type's threshold
// only in name, not value, per spec §4.1 step 3.
type direction int

const (
	dirFlat direction = iota
	dirUp
	dirDown
)

func directionOf(stepGradientPercent float64) direction {
	switch {
	case stepGradientPercent > FlatBandPercent:
		return dirUp
	case stepGradientPercent < -FlatBandPercent:
		return dirDown
	default:
		return dirFlat
	}
}

// builder accumulates points for the segment currently being grown.
type builder struct {
	startIdx     int
	distanceKm   float64
	gainM        float64
	lossM        float64
	startElevM   float64
	currentElevM float64
}

func newBuilder(startIdx int, startElevM float64) *builder {
	return &builder{startIdx: startIdx, startElevM: startElevM, currentElevM: startElevM}
}

func (b *builder) add(distKm, riseM float64, newElevM float64) {
	b.distanceKm += distKm
	if riseM > 0 {
		b.gainM += riseM
	} else {
		b.lossM += -riseM
	}
	b.currentElevM = newElevM
}

func (b *builder) close(ordinal int) MacroSegment {
	s := MacroSegment{
		Ordinal:    ordinal,
		DistanceKm: b.distanceKm,
		GainM:      b.gainM,
		LossM:      b.lossM,
		StartElevM: b.startElevM,
		EndElevM:   b.currentElevM,
	}
	s.Type = typeFromGradient(s.GradientPercent())
	return s
}

// Segment splits a track of at least two points into an ordered list of
// MacroSegments covering the whole track. Points closer together than
// geo.MinPointDistanceM are skipped during detection to avoid a
// divide-by-zero on the step gradient, but still contribute their
// elevation to the segment they fall within.
func Segment(points []geo.Point) []MacroSegment {
	if len(points) == 0 {
		return nil
	}
	if len(points) == 1 {
		return []MacroSegment{{
			Ordinal:    1,
			Type:       FlatSeg,
			DistanceKm: 0,
			StartElevM: points[0].ElevM,
			EndElevM:   points[0].ElevM,
		}}
	}

	smoothed := geo.SmoothElevations(points, 5)

	var segments []MacroSegment
	ordinal := 1

	cur := newBuilder(0, smoothed[0])
	curDir := dirFlat

	for i := 1; i < len(points); i++ {
		distKm := geo.HaversineKm(points[i-1], points[i])
		distM := distKm * 1000
		if distM < geo.MinPointDistanceM {
			// Too short to trust a gradient; still accrue distance/elevation
			// into the current segment without reassessing direction.
			cur.add(distKm, smoothed[i]-smoothed[i-1], smoothed[i])
			continue
		}

		riseM := smoothed[i] - smoothed[i-1]
		stepGradient := geo.GradientPercent(riseM, distM)
		stepDir := directionOf(stepGradient)

		if stepDir != curDir && stepDir != dirFlat && cur.distanceKm >= MinSegmentKm {
			segments = append(segments, cur.close(ordinal))
			ordinal++
			// Restart at the point of change so adjacent segments share a
			// boundary point (spec §4.1 step 5).
			cur = newBuilder(i-1, smoothed[i-1])
			curDir = stepDir
		} else if stepDir != dirFlat {
			// Direction actually changed but the run is too short to close;
			// swallow the reversal and keep accumulating under the new
			// direction label so subsequent steps compare against it.
			curDir = stepDir
		}

		cur.add(distKm, riseM, smoothed[i])
	}

	// The last segment is emitted unconditionally (spec §4.1 step 6).
	segments = append(segments, cur.close(ordinal))

	return segments
}

// TotalDistanceKm sums the distance of a segment slice.
func TotalDistanceKm(segments []MacroSegment) float64 {
	total := 0.0
	for _, s := range segments {
		total += s.DistanceKm
	}
	return total
}
