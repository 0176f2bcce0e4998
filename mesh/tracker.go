package mesh

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/kwv/skymesh/geom"
)

// LandmarkTracker owns the landmark state for one sequential pass over a
// frame stream: the active (provisional) landmarks, the final (confirmed)
// landmarks and the spatial index over the final positions.
//
// It is not safe for concurrent use.
type LandmarkTracker struct {
	cfg     *Config
	matcher DescriptorMatcher
	rng     *rand.Rand

	active []*ActiveLandmark
	final  []*FinalLandmark
	index  *geom.GridIndex
}

// NewLandmarkTracker creates an empty tracker.
func NewLandmarkTracker(cfg *Config, matcher DescriptorMatcher) *LandmarkTracker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if matcher == nil {
		matcher = BruteForceMatcher{Norm: NormL1}
	}
	seed := cfg.Landmarks.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &LandmarkTracker{
		cfg:     cfg,
		matcher: matcher,
		rng:     rand.New(rand.NewSource(seed)),
		index:   geom.NewGridIndex(cfg.Landmarks.GridCellSize),
	}
}

// Active returns the current provisional landmarks.
func (t *LandmarkTracker) Active() []*ActiveLandmark {
	return t.active
}

// Final returns the confirmed landmarks in creation order; a landmark's ID is
// its position in this slice.
func (t *LandmarkTracker) Final() []*FinalLandmark {
	return t.final
}

func activeDescriptors(active []*ActiveLandmark) [][]float32 {
	out := make([][]float32, len(active))
	for i, l := range active {
		out[i] = l.Descriptor
	}
	return out
}

// ProcessFrame folds one frame's features into the landmark state. Frames
// without features or without an initial bound are rejected with
// ErrMissingFeatures or ErrMissingBound and leave the state untouched.
func (t *LandmarkTracker) ProcessFrame(f *Frame) error {
	if f.Features == nil {
		return ErrMissingFeatures
	}
	if f.Bound == nil {
		return ErrMissingBound
	}
	if err := f.Features.Validate(); err != nil {
		return fmt.Errorf("frame %d: %w", f.Index, err)
	}

	w, h := f.Size()
	pose, angles, err := FrameAngles(t.cfg.Camera, w, h, *f.Bound, f.Features.Points)
	if err != nil {
		return fmt.Errorf("frame %d pose: %w", f.Index, err)
	}

	// feature index -> active landmark index
	matched := make(map[int]int)
	knn := t.matcher.KnnMatch(f.Features.Descriptors, activeDescriptors(t.active), 2)
	for _, m := range FilterMatches(knn, t.cfg.Landmarks.Ratio, nil) {
		matched[m.QueryIndex] = m.TrainIndex
	}

	for _, l := range t.active {
		l.Tick()
	}

	for i, desc := range f.Features.Descriptors {
		obs := Observation{
			Frame:  f.Index,
			Pixel:  f.Features.Points[i],
			Angles: angles[i],
			Camera: pose.Center,
		}
		if idx, ok := matched[i]; ok {
			t.active[idx].Add(obs, desc)
		} else {
			t.active = append(t.active, NewActiveLandmark(obs, desc))
		}
	}

	var keep, old []*ActiveLandmark
	for _, l := range t.active {
		switch {
		case !l.Valid():
		case l.Old():
			old = append(old, l)
		default:
			keep = append(keep, l)
		}
	}
	t.active = keep

	t.Consolidate(old)
	return nil
}

// Flush consolidates active landmarks that have already been seen often
// enough to survive expiry. Call it after the last frame, when no further
// frames will age them out.
func (t *LandmarkTracker) Flush() {
	var ready, rest []*ActiveLandmark
	for _, l := range t.active {
		if l.N >= 5 {
			ready = append(ready, l)
		} else {
			rest = append(rest, l)
		}
	}
	t.active = rest
	t.Consolidate(ready)
}

type solvedLandmark struct {
	active *ActiveLandmark
	pos    geom.Point
	h      float64
}

// Consolidate merges a batch of expired active landmarks into the final set.
// Each one is matched against nearby final landmarks (plus a random sample of
// all of them); a descriptor match is accepted only when the solved position
// and height also agree, otherwise the landmark becomes a new final landmark.
func (t *LandmarkTracker) Consolidate(batch []*ActiveLandmark) {
	if len(batch) == 0 {
		return
	}

	solved := make([]solvedLandmark, 0, len(batch))
	var rect geom.Rectangle
	for _, l := range batch {
		p, h, err := l.Position()
		if err != nil {
			log.Printf("Warning: dropping landmark with %d observations: %v", l.N, err)
			continue
		}
		if len(solved) == 0 {
			rect = p.Bounds()
		} else {
			rect = rect.Extend(p)
		}
		solved = append(solved, solvedLandmark{active: l, pos: p, h: h})
	}
	if len(solved) == 0 {
		return
	}

	pool := t.candidatePool(rect)

	// batch index -> final landmark ID
	accepted := make(map[int]int)
	if len(pool) >= 2 {
		query := make([][]float32, len(solved))
		for i, s := range solved {
			query[i] = s.active.Descriptor
		}
		train := make([][]float32, len(pool))
		for i, id := range pool {
			train[i] = t.final[id].Descriptor
		}

		cfg := t.cfg.Landmarks
		knn := t.matcher.KnnMatch(query, train, 2)
		// geometry is checked only after each final has picked its closest
		// candidate; a rejected pick leaves that final unmatched
		for _, m := range FilterMatches(knn, cfg.Ratio, nil) {
			s := solved[m.QueryIndex]
			f := t.final[pool[m.TrainIndex]]
			if s.pos.Distance(f.Position) >= cfg.MaxDistance || math.Abs(s.h-f.Height) >= cfg.MaxHeightDelta {
				continue
			}
			accepted[m.QueryIndex] = pool[m.TrainIndex]
		}
	}

	for i, s := range solved {
		if id, ok := accepted[i]; ok {
			t.final[id].Add(s.pos, s.h, s.active.Descriptor, s.active.N)
			continue
		}
		id := len(t.final)
		t.index.Insert(s.pos, id)
		t.final = append(t.final, NewFinalLandmark(id, s.pos, s.h, s.active.Descriptor, s.active.N))
	}
}

// candidatePool returns the IDs of final landmarks indexed near rect plus a
// random sample of up to SampleSize of all final landmarks, without
// duplicates.
func (t *LandmarkTracker) candidatePool(rect geom.Rectangle) []int {
	seen := make(map[int]bool)
	var pool []int
	for _, id := range t.index.Search(rect) {
		if !seen[id] {
			seen[id] = true
			pool = append(pool, id)
		}
	}
	for _, id := range sampleIndices(t.rng, len(t.final), t.cfg.Landmarks.SampleSize) {
		if !seen[id] {
			seen[id] = true
			pool = append(pool, id)
		}
	}
	return pool
}

// sampleIndices picks min(k, n) distinct indices from [0, n).
func sampleIndices(rng *rand.Rand, n, k int) []int {
	if k <= 0 || n <= 0 {
		return nil
	}
	if k >= n {
		return rng.Perm(n)
	}
	// partial Fisher-Yates over a sparse permutation
	swapped := make(map[int]int, k)
	out := make([]int, k)
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		vi, ok := swapped[i]
		if !ok {
			vi = i
		}
		vj, ok := swapped[j]
		if !ok {
			vj = j
		}
		out[i] = vj
		swapped[j] = vi
	}
	return out
}

// FindLandmarks runs the landmark tracker over a frame sequence and returns
// the confirmed landmarks. Frames lacking features or an initial bound are
// skipped.
func FindLandmarks(cfg *Config, matcher DescriptorMatcher, frames []*Frame) []*FinalLandmark {
	t := NewLandmarkTracker(cfg, matcher)
	for _, f := range frames {
		if f == nil || f.Features == nil || f.Bound == nil {
			continue
		}
		log.Printf("find landmarks: process frame %d", f.Index)
		if err := t.ProcessFrame(f); err != nil {
			log.Printf("Warning: find landmarks: frame %d: %v", f.Index, err)
		}
	}
	t.Flush()
	log.Printf("find landmarks: %d final landmarks, %d active discarded", len(t.final), len(t.active))
	return t.final
}

// SelectOkay marks final landmarks as okay (usable alignment anchors) when
// they have been consolidated at least OkayMinObservations times and sit
// above OkayMinHeight. It returns the okay landmarks followed by up to
// SampleSize randomly chosen other landmarks; those still take part in
// descriptor matching so that the ratio test sees realistic competition.
func SelectOkay(cfg LandmarkConfig, landmarks []*FinalLandmark, rng *rand.Rand) []*FinalLandmark {
	var pool, rest []*FinalLandmark
	for _, l := range landmarks {
		l.Okay = l.Merges >= cfg.OkayMinObservations && l.Height > cfg.OkayMinHeight
		if l.Okay {
			pool = append(pool, l)
		} else {
			rest = append(rest, l)
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	for _, i := range sampleIndices(rng, len(rest), cfg.SampleSize) {
		pool = append(pool, rest[i])
	}
	return pool
}
