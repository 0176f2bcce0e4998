package mesh

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kwv/skymesh/geom"
)

// RANSACSolver is the in-process HomographySolver: random 4-point samples,
// inlier counting by reprojection distance, then a least-squares refit on
// the best consensus set.
type RANSACSolver struct {
	MaxIterations int
	Confidence    float64
	RNG           *rand.Rand
}

// NewRANSACSolver returns a solver seeded with seed (0 = clock).
func NewRANSACSolver(seed int64) *RANSACSolver {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RANSACSolver{
		MaxIterations: 2000,
		Confidence:    0.995,
		RNG:           rand.New(rand.NewSource(seed)),
	}
}

// Fit implements HomographySolver.
func (s *RANSACSolver) Fit(src, dst []geom.Point, threshold float64) (Homography, error) {
	n := len(src)
	if n != len(dst) {
		return Homography{}, fmt.Errorf("point count mismatch: %d vs %d", n, len(dst))
	}
	if n < 4 {
		return Homography{}, fmt.Errorf("%w: need at least 4 correspondences, got %d", ErrInsufficientMatches, n)
	}

	thresh2 := threshold * threshold
	var bestModel Homography
	var bestInliers []int

	iterations := s.MaxIterations
	sample := make([]int, 4)
	sampleSrc := make([]geom.Point, 4)
	sampleDst := make([]geom.Point, 4)

	for iter := 0; iter < iterations; iter++ {
		s.sample(n, sample)
		for i, idx := range sample {
			sampleSrc[i] = src[idx]
			sampleDst[i] = dst[idx]
		}

		model, err := estimateDLT(sampleSrc, sampleDst)
		if err != nil {
			continue
		}

		inliers := countInliers(model, src, dst, thresh2)
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
			bestModel = model
			iterations = s.adaptiveIterations(len(inliers), n, iterations)
		}
	}

	if len(bestInliers) < 4 {
		return Homography{}, fmt.Errorf("%w: RANSAC found %d inliers", ErrRobustFitFailure, len(bestInliers))
	}

	inSrc := make([]geom.Point, len(bestInliers))
	inDst := make([]geom.Point, len(bestInliers))
	for i, idx := range bestInliers {
		inSrc[i] = src[idx]
		inDst[i] = dst[idx]
	}
	refined, err := estimateDLT(inSrc, inDst)
	if err != nil {
		return bestModel, nil
	}
	return refined, nil
}

// sample fills out with distinct indices in [0, n).
func (s *RANSACSolver) sample(n int, out []int) {
	for i := range out {
		for {
			idx := s.RNG.Intn(n)
			if !containsInt(out[:i], idx) {
				out[i] = idx
				break
			}
		}
	}
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (s *RANSACSolver) adaptiveIterations(inliers, total, current int) int {
	w := float64(inliers) / float64(total)
	p := math.Pow(w, 4)
	if p >= 1 {
		return 0
	}
	if p <= 0 {
		return current
	}
	needed := math.Log(1-s.Confidence) / math.Log(1-p)
	if needed < float64(current) {
		return int(math.Ceil(needed))
	}
	return current
}

func countInliers(h Homography, src, dst []geom.Point, thresh2 float64) []int {
	var inliers []int
	for i := range src {
		p := h.Apply(src[i])
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		if p.SquaredDistance(dst[i]) < thresh2 {
			inliers = append(inliers, i)
		}
	}
	return inliers
}
