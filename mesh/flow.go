package mesh

import (
	"fmt"
	"image"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kwv/skymesh/geom"
)

// FlowGrid returns sample positions every step pixels over a w x h frame,
// keeping one step away from the right and bottom edges.
func FlowGrid(w, h, step int) []geom.Point {
	if step <= 0 {
		return nil
	}
	var points []geom.Point
	for y := 0; y < h-step; y += step {
		for x := 0; x < w-step; x += step {
			points = append(points, geom.Pt(float64(x), float64(y)))
		}
	}
	return points
}

// HomographyFromFlow propagates prevH to the current frame. A grid over the
// previous frame is tracked into cur; the median displacement d of the
// tracked points is taken as the camera motion and the result is
// prevH * T(-d). It fails with ErrOpticalFlowDegenerate when fewer than
// FlowMinFraction of the grid lands within FlowConsistency of the median.
func HomographyFromFlow(tracker FlowTracker, prevH Homography, prev, cur *image.Gray, size image.Point, cfg AlignConfig) (Homography, error) {
	grid := FlowGrid(size.X, size.Y, cfg.FlowGridStep)
	if len(grid) == 0 {
		return Homography{}, fmt.Errorf("%w: frame %dx%d too small for grid step %d", ErrOpticalFlowDegenerate, size.X, size.Y, cfg.FlowGridStep)
	}

	params := FlowParams{
		Window:  cfg.FlowWindow,
		Levels:  cfg.FlowLevels,
		MaxIter: cfg.FlowMaxIter,
		Epsilon: cfg.FlowEpsilon,
	}
	res, err := tracker.Track(prev, cur, grid, params)
	if err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrOpticalFlowDegenerate, err)
	}
	if len(res.Points) != len(grid) || len(res.Status) != len(grid) {
		return Homography{}, fmt.Errorf("%w: tracker returned %d points for %d inputs", ErrOpticalFlowDegenerate, len(res.Points), len(grid))
	}

	var dxs, dys []float64
	var moves []geom.Point
	for i, ok := range res.Status {
		if !ok {
			continue
		}
		d := res.Points[i].Sub(grid[i])
		moves = append(moves, d)
		dxs = append(dxs, d.X)
		dys = append(dys, d.Y)
	}
	if len(moves) == 0 {
		return Homography{}, fmt.Errorf("%w: no points tracked", ErrOpticalFlowDegenerate)
	}

	shift := geom.Pt(median(dxs), median(dys))
	band := cfg.FlowConsistency * cfg.FlowConsistency
	consistent := 0
	for _, d := range moves {
		if d.SquaredDistance(shift) < band {
			consistent++
		}
	}
	if frac := float64(consistent) / float64(len(grid)); frac < cfg.FlowMinFraction {
		return Homography{}, fmt.Errorf("%w: %.0f%% of flow consistent", ErrOpticalFlowDegenerate, frac*100)
	}

	return prevH.Mul(TranslationHomography(-shift.X, -shift.Y)), nil
}

func median(values []float64) float64 {
	sort.Float64s(values)
	return stat.Quantile(0.5, stat.Empirical, values, nil)
}
