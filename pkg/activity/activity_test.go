package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeClassification(t *testing.T) {
	assert.True(t, TypeRun.IsRunning())
	assert.True(t, TypeTrailRun.IsRunning())
	assert.True(t, TypeVirtualRun.IsRunning())
	assert.False(t, TypeRun.IsHiking())

	assert.True(t, TypeHike.IsHiking())
	assert.True(t, TypeWalk.IsHiking())
	assert.False(t, TypeHike.IsRunning())
}

func TestSupportedTypes(t *testing.T) {
	for ty := range SupportedTypes {
		assert.True(t, ty.IsRunning() || ty.IsHiking())
	}
}

func TestSplitPaceMinPerKm(t *testing.T) {
	s := Split{DistanceM: 1000, MovingTimeS: 330}
	assert.InDelta(t, 5.5, s.PaceMinPerKm(), 1e-9)
}

func TestSplitPaceZeroDistance(t *testing.T) {
	s := Split{DistanceM: 0, MovingTimeS: 330}
	assert.Equal(t, 0.0, s.PaceMinPerKm())
}

func TestSplitGradientPercent(t *testing.T) {
	s := Split{DistanceM: 1000, ElevDiffM: 50}
	assert.InDelta(t, 5.0, s.GradientPercent(), 1e-9)

	down := Split{DistanceM: 1000, ElevDiffM: -30}
	assert.InDelta(t, -3.0, down.GradientPercent(), 1e-9)
}
