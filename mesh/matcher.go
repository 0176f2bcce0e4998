package mesh

import (
	"math"
	"sort"
)

// Norm selects the descriptor distance used by BruteForceMatcher.
type Norm int

const (
	NormL1 Norm = iota
	NormL2
)

// BruteForceMatcher is an exhaustive k-nearest-neighbour descriptor matcher.
// It is the in-process default; the opencv package provides an equivalent
// backed by cv::BFMatcher.
type BruteForceMatcher struct {
	Norm Norm
}

// KnnMatch implements DescriptorMatcher.
func (bf BruteForceMatcher) KnnMatch(query, train [][]float32, k int) [][]Match {
	out := make([][]Match, len(query))
	if k <= 0 || len(train) == 0 {
		return out
	}

	for qi, q := range query {
		best := make([]Match, 0, k+1)
		for ti, t := range train {
			m := Match{Distance: bf.distance(q, t), QueryIndex: qi, TrainIndex: ti}
			if len(best) == k && !matchLess(m, best[k-1]) {
				continue
			}
			pos := sort.Search(len(best), func(i int) bool { return matchLess(m, best[i]) })
			best = append(best, Match{})
			copy(best[pos+1:], best[pos:])
			best[pos] = m
			if len(best) > k {
				best = best[:k]
			}
		}
		out[qi] = best
	}
	return out
}

func (bf BruteForceMatcher) distance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	switch bf.Norm {
	case NormL2:
		for i := 0; i < n; i++ {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	default:
		for i := 0; i < n; i++ {
			sum += math.Abs(float64(a[i] - b[i]))
		}
		return sum
	}
}

// matchLess orders by distance, then train index, then query index.
func matchLess(a, b Match) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.TrainIndex != b.TrainIndex {
		return a.TrainIndex < b.TrainIndex
	}
	return a.QueryIndex < b.QueryIndex
}

// RatioTest reports whether the best distance is clearly better than the
// second best: best < ratio*second.
func RatioTest(best, second, ratio float64) bool {
	return best < ratio*second
}

// FilterMatches reduces raw k=2 candidates to one-to-one correspondences.
//
// Each query keeps its nearest candidate only if it passes the ratio test
// against its runner-up (a lone candidate has nothing to compete with) and
// accept (when non-nil). Survivors are grouped by
// train index; each train item keeps its closest query, and only if that
// query also passes the ratio test against the next competing query. Ties
// break on the lower query index. Results are ordered by train index.
func FilterMatches(knn [][]Match, ratio float64, accept func(Match) bool) []Match {
	groups := make(map[int][]Match)
	var keys []int

	for _, candidates := range knn {
		if len(candidates) == 0 {
			continue
		}
		m := candidates[0]
		if len(candidates) > 1 && !RatioTest(m.Distance, candidates[1].Distance, ratio) {
			continue
		}
		if accept != nil && !accept(m) {
			continue
		}
		if _, ok := groups[m.TrainIndex]; !ok {
			keys = append(keys, m.TrainIndex)
		}
		groups[m.TrainIndex] = append(groups[m.TrainIndex], m)
	}

	sort.Ints(keys)
	matches := make([]Match, 0, len(keys))
	for _, key := range keys {
		l := groups[key]
		sort.SliceStable(l, func(i, j int) bool { return matchLess(l[i], l[j]) })
		if len(l) > 1 && !RatioTest(l[0].Distance, l[1].Distance, ratio) {
			continue
		}
		matches = append(matches, l[0])
	}
	return matches
}
