package mesh

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"

	"github.com/kwv/skymesh/geom"
)

// LoadBounds reads a bound sequence: a JSON array with one entry per frame,
// either null or four [x, y] pairs.
func LoadBounds(path string) ([]*Quad, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bounds file: %w", err)
	}
	var bounds []*Quad
	if err := json.Unmarshal(data, &bounds); err != nil {
		return nil, fmt.Errorf("parsing bounds %s: %w", path, err)
	}
	return bounds, nil
}

// SaveBounds writes a bound sequence in the LoadBounds format.
func SaveBounds(path string, bounds []*Quad) error {
	if bounds == nil {
		bounds = []*Quad{}
	}
	data, err := json.Marshal(bounds)
	if err != nil {
		return fmt.Errorf("marshaling bounds: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating bounds directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing bounds file: %w", err)
	}
	return nil
}

// CountBounds returns how many entries are present.
func CountBounds(bounds []*Quad) int {
	n := 0
	for _, b := range bounds {
		if b != nil {
			n++
		}
	}
	return n
}

// BoundPlausible reports whether every edge of q is within Tolerance of the
// nominal footprint: top and bottom against NominalWidth, left and right
// against NominalHeight.
func BoundPlausible(q Quad, cfg BoundsConfig) bool {
	edges := []struct {
		length  float64
		nominal float64
	}{
		{q[0].Distance(q[1]), cfg.NominalWidth},
		{q[2].Distance(q[3]), cfg.NominalWidth},
		{q[1].Distance(q[2]), cfg.NominalHeight},
		{q[0].Distance(q[3]), cfg.NominalHeight},
	}
	for _, e := range edges {
		if math.Abs(e.length-e.nominal) > cfg.Tolerance {
			return false
		}
	}
	return true
}

// FilterBounds returns a copy of bounds with implausibly shaped entries
// removed. It never adds a bound.
func FilterBounds(bounds []*Quad, cfg BoundsConfig) []*Quad {
	out := make([]*Quad, len(bounds))
	for i, b := range bounds {
		if b != nil && BoundPlausible(*b, cfg) {
			out[i] = b
		}
	}
	return out
}

type indexedBound struct {
	frame int
	bound *Quad
}

// smoothWindow finds the smallest radius in [MinRadius, MaxRadius) for which
// at least MinBefore bounds precede i and MinAfter bounds start at or after i.
func smoothWindow(bounds []*Quad, i int, cfg BoundsConfig) []indexedBound {
	for n := cfg.MinRadius; n < cfg.MaxRadius; n++ {
		start := max(i-n, 0)
		end := min(i+n, len(bounds)-1)

		var low, high []indexedBound
		for j := start; j < i; j++ {
			if bounds[j] != nil {
				low = append(low, indexedBound{j, bounds[j]})
			}
		}
		for j := i; j < end; j++ {
			if bounds[j] != nil {
				high = append(high, indexedBound{j, bounds[j]})
			}
		}
		if len(low) < cfg.MinBefore || len(high) < cfg.MinAfter {
			continue
		}
		return append(low, high...)
	}
	return nil
}

// fitBound fits a line per corner coordinate over window and evaluates it at
// frame i.
func fitBound(window []indexedBound, i int) Quad {
	xs := make([]float64, len(window))
	ys := make([]float64, len(window))
	for k, w := range window {
		xs[k] = float64(w.frame)
	}

	var q Quad
	for corner := 0; corner < 4; corner++ {
		var coords [2]float64
		for axis := 0; axis < 2; axis++ {
			for k, w := range window {
				p := w.bound[corner]
				if axis == 0 {
					ys[k] = p.X
				} else {
					ys[k] = p.Y
				}
			}
			alpha, beta := stat.LinearRegression(xs, ys, nil, false)
			coords[axis] = math.Round(alpha + beta*float64(i))
		}
		q[corner] = geom.Pt(coords[0], coords[1])
	}
	return q
}

// Smooth2 fills missing bounds by fitting a line through nearby bounds, per
// corner and axis. The window around each frame grows until it holds enough
// bounds on both sides; frames with no adequate window stay missing. Present
// bounds are kept unless cfg.Refit is set.
func Smooth2(bounds []*Quad, cfg BoundsConfig) []*Quad {
	out := make([]*Quad, len(bounds))
	for i, b := range bounds {
		if b != nil && !cfg.Refit {
			out[i] = b
			continue
		}
		window := smoothWindow(bounds, i, cfg)
		if window == nil {
			out[i] = b
			continue
		}
		q := fitBound(window, i)
		out[i] = &q
	}
	return out
}

// SmoothBounds fills each gap frame by interpolating between the nearest
// bounds before and after it, weighted by frame distance. Gaps whose
// neighbours' rectangles overlap by less than IoUThreshold are left missing.
func SmoothBounds(bounds []*Quad, cfg BoundsConfig) []*Quad {
	n := len(bounds)
	prev := make([]int, n)
	next := make([]int, n)
	last := -1
	for i := 0; i < n; i++ {
		if bounds[i] != nil {
			last = i
		}
		prev[i] = last
	}
	last = -1
	for i := n - 1; i >= 0; i-- {
		if bounds[i] != nil {
			last = i
		}
		next[i] = last
	}

	out := make([]*Quad, n)
	copy(out, bounds)
	for i := range bounds {
		if bounds[i] != nil || prev[i] < 0 || next[i] < 0 {
			continue
		}
		p, q := bounds[prev[i]], bounds[next[i]]
		if p.Rect().IoU(q.Rect()) < cfg.IoUThreshold {
			continue
		}
		pw := float64(next[i] - i)
		nw := float64(i - prev[i])
		var avg Quad
		for c := range avg {
			avg[c] = p[c].Scale(pw).Add(q[c].Scale(nw)).Scale(1 / (pw + nw)).Round()
		}
		out[i] = &avg
	}
	return out
}

// BoundScore compares an output sequence against a reference.
type BoundScore struct {
	Compared  int     `json:"compared"`
	Missing   int     `json:"missing"`
	MeanError float64 `json:"meanError"` // top-left corner distance
}

// ScoreBounds filters reference and, for every frame it still has a bound
// for, counts whether out is missing that frame or measures the top-left
// corner error.
func ScoreBounds(out, reference []*Quad, cfg BoundsConfig) BoundScore {
	var score BoundScore
	var errs []float64
	for i, ref := range FilterBounds(reference, cfg) {
		if ref == nil {
			continue
		}
		score.Compared++
		if i >= len(out) || out[i] == nil {
			score.Missing++
			continue
		}
		errs = append(errs, ref[0].Distance(out[i][0]))
	}
	if len(errs) > 0 {
		score.MeanError = stat.Mean(errs, nil)
	}
	return score
}
