package opencv

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/kwv/skymesh/geom"
	"github.com/kwv/skymesh/mesh"
)

// cv::RANSAC
const methodRANSAC = gocv.HomographyMethod(8)

// HomographySolver implements mesh.HomographySolver with cv::findHomography.
type HomographySolver struct {
	MaxIterations int
	Confidence    float64
}

// NewHomographySolver returns a solver with OpenCV's default RANSAC limits.
func NewHomographySolver() HomographySolver {
	return HomographySolver{MaxIterations: 2000, Confidence: 0.995}
}

// Fit robustly estimates the homography taking src onto dst.
func (s HomographySolver) Fit(src, dst []geom.Point, threshold float64) (mesh.Homography, error) {
	if len(src) != len(dst) {
		return mesh.Homography{}, fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return mesh.Homography{}, fmt.Errorf("%w: need at least 4 correspondences, got %d", mesh.ErrInsufficientMatches, len(src))
	}

	srcMat := pointsMat(src)
	defer srcMat.Close()
	dstMat := pointsMat(dst)
	defer dstMat.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	h := gocv.FindHomography(srcMat, &dstMat, methodRANSAC, threshold, &mask, s.MaxIterations, s.Confidence)
	defer h.Close()
	if h.Empty() || h.Rows() != 3 || h.Cols() != 3 {
		return mesh.Homography{}, fmt.Errorf("%w: findHomography returned no model", mesh.ErrRobustFitFailure)
	}

	var out mesh.Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = h.GetDoubleAt(r, c)
		}
	}
	if !out.IsFinite() {
		return mesh.Homography{}, fmt.Errorf("%w: non-finite model", mesh.ErrRobustFitFailure)
	}
	return out, nil
}
