package mesh

import (
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/kwv/skymesh/geom"
)

// AlignState is the aligner's reference state.
type AlignState int

const (
	// StateNoReference means there is no previous homography; the next frame
	// must be registered against landmarks.
	StateNoReference AlignState = iota
	// StateFlowTracking means the last frame was placed by optical flow.
	StateFlowTracking
	// StateFeatureMatching means the last frame was registered against landmarks.
	StateFeatureMatching
)

func (s AlignState) String() string {
	switch s {
	case StateNoReference:
		return "no-reference"
	case StateFlowTracking:
		return "flow-tracking"
	case StateFeatureMatching:
		return "feature-matching"
	default:
		return fmt.Sprintf("AlignState(%d)", int(s))
	}
}

// Aligner estimates a frame-to-world homography for each frame in order.
// Frames are registered against confirmed landmarks every FeatureInterval
// frames (or whenever there is no reference) and otherwise carried forward
// from the previous frame with optical flow. Any failure drops the reference.
type Aligner struct {
	Config  AlignConfig
	Ratio   float64
	Matcher DescriptorMatcher
	Solver  HomographySolver

	// Flow is optional; without it every flow step fails.
	Flow FlowTracker
	// Extractor is optional; it supplies features for reference-less frames
	// that have none precomputed.
	Extractor FeatureExtractor

	landmarks   []*FinalLandmark
	descriptors [][]float32

	state    AlignState
	prevGray *image.Gray
	prevSize image.Point
	prevH    Homography
}

// NewAligner creates an aligner matching against landmarks. Only landmarks
// marked Okay are accepted as correspondences; the rest still compete in the
// ratio test.
func NewAligner(cfg *Config, landmarks []*FinalLandmark, matcher DescriptorMatcher, solver HomographySolver, flow FlowTracker) *Aligner {
	if matcher == nil {
		matcher = BruteForceMatcher{Norm: NormL1}
	}
	if solver == nil {
		solver = NewRANSACSolver(cfg.Landmarks.Seed)
	}
	descs := make([][]float32, len(landmarks))
	for i, l := range landmarks {
		descs[i] = l.Descriptor
	}
	return &Aligner{
		Config:      cfg.Align,
		Ratio:       cfg.Landmarks.Ratio,
		Matcher:     matcher,
		Solver:      solver,
		Flow:        flow,
		landmarks:   landmarks,
		descriptors: descs,
	}
}

// State returns the current reference state.
func (a *Aligner) State() AlignState {
	return a.state
}

// Reset drops the previous frame and homography.
func (a *Aligner) Reset() {
	a.state = StateNoReference
	a.prevGray = nil
	a.prevSize = image.Point{}
	a.prevH = IdentityHomography()
}

// Step aligns one frame and returns its world-space bound. On error the
// reference is dropped and the bound is nil.
func (a *Aligner) Step(f *Frame) (*Quad, error) {
	gray := Grayscale(f.Image)

	var H Homography
	var err error
	next := StateFeatureMatching
	if a.state != StateNoReference && (f.Features == nil || f.Index%a.Config.FeatureInterval != 0) {
		next = StateFlowTracking
		H, err = a.fromFlow(gray)
	} else {
		H, err = a.fromFeatures(f)
	}
	if err == nil && !H.IsFinite() {
		err = fmt.Errorf("%w: non-finite homography", ErrRobustFitFailure)
	}
	if err != nil {
		a.Reset()
		return nil, err
	}

	w, h := f.Size()
	a.state = next
	a.prevGray = gray
	a.prevSize = image.Pt(w, h)
	a.prevH = H

	bound := H.ApplyQuad(f.Corners()).Round()
	return &bound, nil
}

func (a *Aligner) fromFlow(gray *image.Gray) (Homography, error) {
	if a.Flow == nil {
		return Homography{}, fmt.Errorf("%w: no flow tracker", ErrOpticalFlowDegenerate)
	}
	return HomographyFromFlow(a.Flow, a.prevH, a.prevGray, gray, a.prevSize, a.Config)
}

func (a *Aligner) fromFeatures(f *Frame) (Homography, error) {
	features := f.Features
	if features == nil {
		if a.Extractor == nil {
			return Homography{}, ErrMissingFeatures
		}
		var err error
		features, err = a.Extractor.Extract(f.Image)
		if err != nil {
			return Homography{}, fmt.Errorf("%w: %v", ErrMissingFeatures, err)
		}
	}
	if features.Len() == 0 || len(a.descriptors) == 0 {
		return Homography{}, fmt.Errorf("%w: %d features, %d landmarks", ErrInsufficientMatches, features.Len(), len(a.descriptors))
	}

	okay := func(m Match) bool { return a.landmarks[m.QueryIndex].Okay }
	knn := a.Matcher.KnnMatch(a.descriptors, features.Descriptors, 2)
	matches := FilterMatches(knn, a.Ratio, okay)
	if len(matches) < a.Config.MinMatches {
		return Homography{}, fmt.Errorf("%w: %d of %d required", ErrInsufficientMatches, len(matches), a.Config.MinMatches)
	}

	src := make([]geom.Point, len(matches))
	dst := make([]geom.Point, len(matches))
	for i, m := range matches {
		src[i] = features.Points[m.TrainIndex]
		dst[i] = a.landmarks[m.QueryIndex].Position
	}
	return a.Solver.Fit(src, dst, a.Config.RANSACThreshold)
}

// Align runs Step over frames in order. frames[i] is frame i or nil when the
// frame is absent; absent frames and frames without an image keep the
// current reference. The result has one entry per input frame, nil where
// alignment failed.
func (a *Aligner) Align(frames []*Frame) []*Quad {
	out := make([]*Quad, len(frames))
	for i, f := range frames {
		if f == nil || f.Image == nil {
			continue
		}
		bound, err := a.Step(f)
		if err != nil {
			if errors.Is(err, ErrMissingFeatures) {
				continue
			}
			log.Printf("Warning: align: frame %d: %v", f.Index, err)
			continue
		}
		log.Printf("align: frame %d bounds %v (%s)", f.Index, *bound, a.state)
		out[i] = bound
	}
	return out
}
