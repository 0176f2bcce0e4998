package opencv

import (
	"gocv.io/x/gocv"

	"github.com/kwv/skymesh/mesh"
)

// BFMatcher implements mesh.DescriptorMatcher with cv::BFMatcher using the
// L1 norm, which suits SIFT descriptors.
type BFMatcher struct{}

// KnnMatch returns up to k train candidates per query descriptor.
func (BFMatcher) KnnMatch(query, train [][]float32, k int) [][]mesh.Match {
	out := make([][]mesh.Match, len(query))
	if len(query) == 0 || len(train) == 0 || k <= 0 {
		return out
	}

	q := descriptorMat(query)
	defer q.Close()
	t := descriptorMat(train)
	defer t.Close()

	bf := gocv.NewBFMatcherWithParams(gocv.NormL1, false)
	defer bf.Close()

	for _, candidates := range bf.KnnMatch(q, t, k) {
		for _, dm := range candidates {
			if dm.QueryIdx < 0 || dm.QueryIdx >= len(out) {
				continue
			}
			out[dm.QueryIdx] = append(out[dm.QueryIdx], mesh.Match{
				Distance:   dm.Distance,
				QueryIndex: dm.QueryIdx,
				TrainIndex: dm.TrainIdx,
			})
		}
	}
	return out
}
