package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// Rectangle is an axis-aligned box. Start <= End on both axes.
type Rectangle struct {
	b orb.Bound
}

// Rect builds a rectangle from two opposite corners in any order.
func Rect(a, b Point) Rectangle {
	return Rectangle{b: orb.Bound{
		Min: orb.Point{math.Min(a.X, b.X), math.Min(a.Y, b.Y)},
		Max: orb.Point{math.Max(a.X, b.X), math.Max(a.Y, b.Y)},
	}}
}

// RectFromPoints returns the smallest rectangle containing every point.
// ok is false when points is empty.
func RectFromPoints(points []Point) (r Rectangle, ok bool) {
	if len(points) == 0 {
		return Rectangle{}, false
	}
	r = points[0].Bounds()
	for _, p := range points[1:] {
		r = r.Extend(p)
	}
	return r, true
}

// Start returns the minimum corner.
func (r Rectangle) Start() Point { return FromOrb(r.b.Min) }

// End returns the maximum corner.
func (r Rectangle) End() Point { return FromOrb(r.b.Max) }

// Orb exposes the underlying orb.Bound.
func (r Rectangle) Orb() orb.Bound { return r.b }

// Width along X.
func (r Rectangle) Width() float64 { return r.b.Max.X() - r.b.Min.X() }

// Height along Y.
func (r Rectangle) Height() float64 { return r.b.Max.Y() - r.b.Min.Y() }

// Area of the rectangle.
func (r Rectangle) Area() float64 { return r.Width() * r.Height() }

// Center point.
func (r Rectangle) Center() Point { return FromOrb(r.b.Center()) }

// Contains reports whether p lies inside r (edges inclusive).
func (r Rectangle) Contains(p Point) bool {
	return r.b.Contains(p.Orb())
}

// Extend grows r to include p.
func (r Rectangle) Extend(p Point) Rectangle {
	return Rectangle{b: r.b.Extend(p.Orb())}
}

// Union returns the smallest rectangle containing r and o.
func (r Rectangle) Union(o Rectangle) Rectangle {
	return Rectangle{b: r.b.Union(o.b)}
}

// AddTol expands r by tol on every side.
func (r Rectangle) AddTol(tol float64) Rectangle {
	return Rectangle{b: r.b.Pad(tol)}
}

// Intersects reports whether r and o overlap (touching counts).
func (r Rectangle) Intersects(o Rectangle) bool {
	return r.b.Intersects(o.b)
}

// Clip returns the intersection of r and o. ok is false when they are disjoint.
func (r Rectangle) Clip(o Rectangle) (Rectangle, bool) {
	if !r.Intersects(o) {
		return Rectangle{}, false
	}
	return Rectangle{b: orb.Bound{
		Min: orb.Point{math.Max(r.b.Min.X(), o.b.Min.X()), math.Max(r.b.Min.Y(), o.b.Min.Y())},
		Max: orb.Point{math.Min(r.b.Max.X(), o.b.Max.X()), math.Min(r.b.Max.Y(), o.b.Max.Y())},
	}}, true
}

// IoU returns intersection-over-union of r and o, 0 when disjoint or degenerate.
func (r Rectangle) IoU(o Rectangle) float64 {
	inter, ok := r.Clip(o)
	if !ok {
		return 0
	}
	ia := inter.Area()
	union := r.Area() + o.Area() - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}
