package mesh

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/skymesh/geom"
)

func TestEstimatePose(t *testing.T) {
	cam := DefaultConfig().Camera
	wantHeight := 960 / math.Tan(cam.FOVRadians()/2)

	tests := []struct {
		name       string
		bound      Quad
		wantCenter geom.Point
		wantHeight float64
	}{
		{
			name:       "full frame footprint",
			bound:      rectQuad(-900, -500, 1920, 1080),
			wantCenter: geom.Pt(60, 40),
			wantHeight: wantHeight,
		},
		{
			name:       "half size footprint is half as high",
			bound:      rectQuad(0, 0, 960, 540),
			wantCenter: geom.Pt(480, 270),
			wantHeight: wantHeight / 2,
		},
		{
			// width and aspect-scaled height disagree; both count equally
			name:       "stretched footprint",
			bound:      rectQuad(0, 0, 1920, 540),
			wantCenter: geom.Pt(960, 270),
			wantHeight: wantHeight * 0.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pose, err := EstimatePose(cam, tt.bound)
			require.NoError(t, err)
			assertPointNear(t, tt.wantCenter, pose.Center, epsilon)
			assert.InDelta(t, tt.wantHeight, pose.Height, 1e-6)
		})
	}

	assert.InDelta(t, 1566.6, wantHeight, 0.1)
}

func TestEstimatePose_Degenerate(t *testing.T) {
	var collapsed Quad
	_, err := EstimatePose(DefaultConfig().Camera, collapsed)
	assert.Error(t, err)
}

func TestCameraPose_ViewingAngles(t *testing.T) {
	pose := CameraPose{Center: geom.Pt(100, 100), Height: 1000}

	a := pose.ViewingAngles(geom.Pt(100, 100))
	assert.InDelta(t, 0, a.X, epsilon)
	assert.InDelta(t, 0, a.Y, epsilon)

	a = pose.ViewingAngles(geom.Pt(1100, 0))
	assert.InDelta(t, math.Pi/4, a.X, epsilon)
	assert.InDelta(t, math.Atan(-0.1), a.Y, epsilon)
}

func TestFrameAngles(t *testing.T) {
	cam := DefaultConfig().Camera
	bound := rectQuad(-900, -500, 1920, 1080)
	pixels := []geom.Point{{X: 960, Y: 540}, {X: 0, Y: 0}, {X: 1920, Y: 1080}}

	pose, angles, err := FrameAngles(cam, 1920, 1080, bound, pixels)
	require.NoError(t, err)
	require.Len(t, angles, 3)

	assert.InDelta(t, 0, angles[0].X, epsilon)
	assert.InDelta(t, 0, angles[0].Y, epsilon)
	assert.InDelta(t, math.Atan(-960/pose.Height), angles[1].X, epsilon)
	assert.InDelta(t, math.Atan(-540/pose.Height), angles[1].Y, epsilon)
	assert.InDelta(t, math.Atan(960/pose.Height), angles[2].X, epsilon)

	// angles and pose recover the landmark through the least-squares solve
	obs := Observation{Camera: pose.Center, Angles: angles[1]}
	assert.InDelta(t, -900, obs.Camera.X+pose.Height*math.Tan(obs.Angles.X), 1e-6)
}

func TestFrameAngles_DegenerateBound(t *testing.T) {
	_, _, err := FrameAngles(DefaultConfig().Camera, 1920, 1080, Quad{}, nil)
	assert.Error(t, err)
}
