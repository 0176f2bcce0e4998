package mesh

import (
	"image"

	"github.com/kwv/skymesh/geom"
)

// FeatureExtractor detects keypoints and computes descriptors for an image.
type FeatureExtractor interface {
	Extract(img image.Image) (*FeatureSet, error)
}

// DescriptorMatcher returns, for each query descriptor, up to k train
// candidates ordered by ascending distance. An empty train set yields empty
// candidate lists.
type DescriptorMatcher interface {
	KnnMatch(query, train [][]float32, k int) [][]Match
}

// HomographySolver robustly fits a projective transform mapping src onto dst.
// Implementations return ErrRobustFitFailure when no model can be found.
type HomographySolver interface {
	Fit(src, dst []geom.Point, threshold float64) (Homography, error)
}

// FlowParams are the pyramidal Lucas-Kanade settings.
type FlowParams struct {
	Window  int
	Levels  int
	MaxIter int
	Epsilon float64
}

// FlowResult is the per-point output of a tracker. Status[i] is false when
// point i could not be tracked.
type FlowResult struct {
	Points []geom.Point
	Status []bool
	Errors []float64
}

// FlowTracker tracks sparse points from prev into cur.
type FlowTracker interface {
	Track(prev, cur *image.Gray, points []geom.Point, params FlowParams) (FlowResult, error)
}
