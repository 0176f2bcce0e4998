package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kwv/skymesh/geom"
)

// Observation is one sighting of a landmark: where it appeared in the frame
// and the viewing angles from the camera's world position at that time.
type Observation struct {
	Frame  int        `json:"frame"`
	Pixel  geom.Point `json:"pixel"`
	Angles Angles     `json:"angles"`
	Camera geom.Point `json:"camera"`
}

// ActiveLandmark is a provisional landmark still being observed.
type ActiveLandmark struct {
	Observations []Observation
	Descriptor   []float32 // running mean over all observations
	N            int
	Age          int // ticks since creation
	TTL          int // ticks since the last observation

	firstFrame int
	lastFrame  int
}

// NewActiveLandmark starts a landmark from an unmatched observation.
func NewActiveLandmark(obs Observation, desc []float32) *ActiveLandmark {
	d := make([]float32, len(desc))
	copy(d, desc)
	return &ActiveLandmark{
		Observations: []Observation{obs},
		Descriptor:   d,
		N:            1,
		firstFrame:   obs.Frame,
		lastFrame:    obs.Frame,
	}
}

// FrameRange returns the lowest and highest frame index observed.
func (l *ActiveLandmark) FrameRange() (int, int) {
	return l.firstFrame, l.lastFrame
}

// UpdateFrameRange widens the range to include frame. It returns false when
// frame already lies inside the range, leaving the range untouched.
func (l *ActiveLandmark) UpdateFrameRange(frame int) bool {
	switch {
	case frame < l.firstFrame:
		l.firstFrame = frame
		return true
	case frame > l.lastFrame:
		l.lastFrame = frame
		return true
	default:
		return false
	}
}

// Add records a new observation. Observations from a frame already inside
// the landmark's range are ignored and Add returns false.
func (l *ActiveLandmark) Add(obs Observation, desc []float32) bool {
	if !l.UpdateFrameRange(obs.Frame) {
		return false
	}
	l.Observations = append(l.Observations, obs)
	n := float32(l.N)
	for i := range l.Descriptor {
		if i < len(desc) {
			l.Descriptor[i] = (n*l.Descriptor[i] + desc[i]) / (n + 1)
		}
	}
	l.N++
	l.TTL = 0
	return true
}

// Tick ages the landmark by one processed frame.
func (l *ActiveLandmark) Tick() {
	l.Age++
	l.TTL++
}

// Valid reports whether the landmark has been seen often enough for its age.
func (l *ActiveLandmark) Valid() bool {
	if l.Age >= 1 && l.N < 2 {
		return false
	}
	if (l.Age >= 10 || l.TTL >= 4) && l.N < 5 {
		return false
	}
	return true
}

// Old reports whether the landmark has stopped being observed and is ready
// for consolidation.
func (l *ActiveLandmark) Old() bool {
	return l.TTL >= 4
}

// Position solves the landmark's world position and height from its
// observations.
func (l *ActiveLandmark) Position() (geom.Point, float64, error) {
	return SolvePosition(l.Observations)
}

// SolvePosition finds (x, y, h) in the least-squares sense from
//
//	x - h*tan(thetaX) = a
//	y - h*tan(thetaY) = b
//
// per observation, where (a, b) is the camera's world position. One
// observation gives the minimum-norm solution.
func SolvePosition(observations []Observation) (geom.Point, float64, error) {
	if len(observations) == 0 {
		return geom.Point{}, 0, fmt.Errorf("no observations to solve")
	}

	rows := 2 * len(observations)
	a := mat.NewDense(rows, 3, nil)
	b := mat.NewVecDense(rows, nil)
	for i, obs := range observations {
		a.SetRow(2*i, []float64{1, 0, -math.Tan(obs.Angles.X)})
		b.SetVec(2*i, obs.Camera.X)
		a.SetRow(2*i+1, []float64{0, 1, -math.Tan(obs.Angles.Y)})
		b.SetVec(2*i+1, obs.Camera.Y)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return geom.Point{}, 0, fmt.Errorf("landmark solve: SVD did not converge")
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return geom.Point{}, 0, fmt.Errorf("landmark solve: zero rank system")
	}

	var x mat.VecDense
	svd.SolveVecTo(&x, b, rank)
	return geom.Pt(x.AtVec(0), x.AtVec(1)), x.AtVec(2), nil
}

// FinalLandmark is a confirmed world landmark usable as a registration anchor.
type FinalLandmark struct {
	ID         int        `json:"id"`
	Position   geom.Point `json:"position"`
	Height     float64    `json:"height"`
	Descriptor []float32  `json:"descriptor"`
	N          int        `json:"n"`      // observations folded into the running means
	Merges     int        `json:"merges"` // consolidated batches
	Okay       bool       `json:"okay"`
}

// NewFinalLandmark creates a landmark from a solved active landmark that saw
// weight observations.
func NewFinalLandmark(id int, p geom.Point, h float64, desc []float32, weight int) *FinalLandmark {
	if weight < 1 {
		weight = 1
	}
	d := make([]float32, len(desc))
	copy(d, desc)
	return &FinalLandmark{
		ID:         id,
		Position:   p,
		Height:     h,
		Descriptor: d,
		N:          weight,
		Merges:     1,
	}
}

// Add folds another solved sighting into the running means.
func (f *FinalLandmark) Add(p geom.Point, h float64, desc []float32, weight int) {
	if weight < 1 {
		weight = 1
	}
	n := float64(f.N)
	w := float64(weight)
	total := n + w
	f.Position = geom.Pt((n*f.Position.X+w*p.X)/total, (n*f.Position.Y+w*p.Y)/total)
	f.Height = (n*f.Height + w*h) / total
	for i := range f.Descriptor {
		if i < len(desc) {
			f.Descriptor[i] = float32((n*float64(f.Descriptor[i]) + w*float64(desc[i])) / total)
		}
	}
	f.N += weight
	f.Merges++
}
