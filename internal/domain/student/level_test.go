package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFromPoints(t *testing.T) {
	tests := []struct {
		points EcoPoints
		want   Level
	}{
		{-10, 1},
		{0, 1},
		{499, 1},
		{500, 2},
		{999, 2},
		{1000, 3},
		{12345, 25},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFromPoints(tt.points), "points=%d", tt.points)
		assert.Equal(t, LevelFromPoints(tt.points), LevelFromPoints(tt.points))
	}
}

func TestProgressFromPoints(t *testing.T) {
	p := ProgressFromPoints(750)

	assert.Equal(t, Level(2), p.Level)
	assert.Equal(t, EcoPoints(500), p.TierStart)
	assert.Equal(t, EcoPoints(1000), p.NextTierAt)
	assert.Equal(t, EcoPoints(250), p.PointsIntoLevel)
	assert.InDelta(t, 50.0, p.ProgressPercent, 0.0001)

	zero := ProgressFromPoints(0)
	assert.Equal(t, Level(1), zero.Level)
	assert.Zero(t, zero.ProgressPercent)
}
