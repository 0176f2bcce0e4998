package mesh

import (
	"encoding/json"
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/kwv/skymesh/geom"
)

// FeatureSet holds the keypoints detected in one frame and their descriptors.
// Points[i] corresponds to Descriptors[i].
type FeatureSet struct {
	Points      []geom.Point
	Descriptors [][]float32
}

// Len returns the number of features.
func (fs *FeatureSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.Points)
}

// Validate checks that points and descriptors line up.
func (fs *FeatureSet) Validate() error {
	if len(fs.Points) != len(fs.Descriptors) {
		return fmt.Errorf("feature set has %d points but %d descriptors", len(fs.Points), len(fs.Descriptors))
	}
	return nil
}

// Frame is one decoded video frame with its optional side inputs.
type Frame struct {
	Index int
	Image image.Image

	// Width and Height override the image size when set. Tests use this to
	// describe full-resolution frames without allocating pixels.
	Width  int
	Height int

	// Features is nil for frames without a precomputed feature set.
	Features *FeatureSet

	// Bound is the initial world-space footprint (GPS/IMU derived), or nil.
	Bound *Quad
}

// Size returns the frame's pixel dimensions.
func (f *Frame) Size() (w, h int) {
	if f.Width > 0 && f.Height > 0 {
		return f.Width, f.Height
	}
	if f.Image != nil {
		b := f.Image.Bounds()
		return b.Dx(), b.Dy()
	}
	return 0, 0
}

// Corners returns the four pixel corners clockwise from top-left.
func (f *Frame) Corners() Quad {
	w, h := f.Size()
	return FrameCorners(float64(w), float64(h))
}

// FrameCorners returns the pixel corners of a w x h frame clockwise from top-left.
func FrameCorners(w, h float64) Quad {
	return Quad{geom.Pt(0, 0), geom.Pt(w, 0), geom.Pt(w, h), geom.Pt(0, h)}
}

// Quad is a 4-corner quadrilateral ordered clockwise from top-left.
type Quad [4]geom.Point

// Rect returns the axis-aligned bounding rectangle of q.
func (q Quad) Rect() geom.Rectangle {
	r, _ := geom.RectFromPoints(q[:])
	return r
}

// Center returns the mean of the four corners.
func (q Quad) Center() geom.Point {
	var c geom.Point
	for _, p := range q {
		c = c.Add(p)
	}
	return c.Scale(0.25)
}

// Width is the mean length of the top and bottom edges.
func (q Quad) Width() float64 {
	return (q[0].Distance(q[1]) + q[2].Distance(q[3])) / 2
}

// Height is the mean length of the right and left edges.
func (q Quad) Height() float64 {
	return (q[1].Distance(q[2]) + q[0].Distance(q[3])) / 2
}

// Ring returns q as a closed orb ring.
func (q Quad) Ring() orb.Ring {
	ring := make(orb.Ring, 0, 5)
	for _, p := range q {
		ring = append(ring, p.Orb())
	}
	return append(ring, q[0].Orb())
}

// Area is the planar area enclosed by q.
func (q Quad) Area() float64 {
	return math.Abs(planar.Area(q.Ring()))
}

// Round returns q with integer coordinates.
func (q Quad) Round() Quad {
	var out Quad
	for i, p := range q {
		out[i] = p.Round()
	}
	return out
}

// MarshalJSON writes q as four [x, y] integer pairs.
func (q Quad) MarshalJSON() ([]byte, error) {
	var pairs [4][2]int64
	for i, p := range q {
		pairs[i] = [2]int64{int64(math.Round(p.X)), int64(math.Round(p.Y))}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON reads four [x, y] pairs.
func (q *Quad) UnmarshalJSON(data []byte) error {
	var pairs [][]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	if len(pairs) != 4 {
		return fmt.Errorf("bound must have 4 corners, got %d", len(pairs))
	}
	for i, pair := range pairs {
		if len(pair) != 2 {
			return fmt.Errorf("bound corner %d must have 2 coordinates, got %d", i, len(pair))
		}
		q[i] = geom.Pt(pair[0], pair[1])
	}
	return nil
}

// Angles is a viewing-angle pair (radians) along the world X and Y axes.
type Angles struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Match is one nearest-neighbour candidate from a descriptor matcher.
type Match struct {
	Distance   float64
	QueryIndex int
	TrainIndex int
}
