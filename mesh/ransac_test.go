package mesh

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/skymesh/geom"
)

func TestRANSACSolver_Fit(t *testing.T) {
	want := Homography{0.5, 0, -900, 0, 0.5, -500, 0, 0, 1}
	rng := rand.New(rand.NewSource(3))

	var src, dst []geom.Point
	for i := 0; i < 40; i++ {
		p := geom.Pt(rng.Float64()*1920, rng.Float64()*1080)
		src = append(src, p)
		dst = append(dst, want.Apply(p))
	}
	// a quarter of the correspondences are wrong
	for i := 0; i < 10; i++ {
		src = append(src, geom.Pt(rng.Float64()*1920, rng.Float64()*1080))
		dst = append(dst, geom.Pt(rng.Float64()*1000-900, rng.Float64()*600-500))
	}

	solver := NewRANSACSolver(42)
	h, err := solver.Fit(src, dst, 1)
	require.NoError(t, err)

	for _, p := range []geom.Point{{X: 0, Y: 0}, {X: 1920, Y: 1080}, {X: 960, Y: 540}} {
		assertPointNear(t, want.Apply(p), h.Apply(p), 1e-3)
	}
}

func TestRANSACSolver_Errors(t *testing.T) {
	solver := NewRANSACSolver(1)
	pts := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}

	_, err := solver.Fit(pts, pts, 1)
	assert.True(t, errors.Is(err, ErrInsufficientMatches), "got %v", err)

	_, err = solver.Fit(pts, pts[:2], 1)
	assert.Error(t, err)

	collinear := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}, {X: 4, Y: 4}}
	_, err = solver.Fit(collinear, collinear, 1)
	assert.True(t, errors.Is(err, ErrRobustFitFailure), "got %v", err)
}

func TestRANSACSolver_SampleDistinct(t *testing.T) {
	solver := NewRANSACSolver(7)
	out := make([]int, 4)
	for i := 0; i < 100; i++ {
		solver.sample(5, out)
		seen := make(map[int]bool)
		for _, idx := range out {
			assert.False(t, seen[idx])
			assert.True(t, idx >= 0 && idx < 5)
			seen[idx] = true
		}
	}
}
