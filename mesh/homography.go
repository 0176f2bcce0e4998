package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kwv/skymesh/geom"
)

// Homography is a 3x3 projective transform stored row-major:
// x' = (h0 x + h1 y + h2) / (h6 x + h7 y + h8)
// y' = (h3 x + h4 y + h5) / (h6 x + h7 y + h8)
type Homography [9]float64

// IdentityHomography returns the identity transform
func IdentityHomography() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// TranslationHomography creates a translation-only transform
func TranslationHomography(tx, ty float64) Homography {
	return Homography{1, 0, tx, 0, 1, ty, 0, 0, 1}
}

// Dense returns h as a gonum matrix.
func (h Homography) Dense() *mat.Dense {
	vals := h
	return mat.NewDense(3, 3, vals[:])
}

func homographyFromDense(m mat.Matrix) Homography {
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.At(r, c)
		}
	}
	return h
}

// Apply transforms a single point.
func (h Homography) Apply(p geom.Point) geom.Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	return geom.Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// ApplyAll transforms multiple points
func (h Homography) ApplyAll(points []geom.Point) []geom.Point {
	out := make([]geom.Point, len(points))
	for i, p := range points {
		out[i] = h.Apply(p)
	}
	return out
}

// ApplyQuad transforms the four corners of q.
func (h Homography) ApplyQuad(q Quad) Quad {
	var out Quad
	for i, p := range q {
		out[i] = h.Apply(p)
	}
	return out
}

// Mul composes two transforms: applying h.Mul(o) is applying o first, then h.
func (h Homography) Mul(o Homography) Homography {
	var prod mat.Dense
	prod.Mul(h.Dense(), o.Dense())
	return homographyFromDense(&prod)
}

// Inverse returns the inverse transform.
func (h Homography) Inverse() (Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.Dense()); err != nil {
		return Homography{}, fmt.Errorf("homography is not invertible: %w", err)
	}
	return homographyFromDense(&inv).normalized(), nil
}

// IsFinite reports whether every entry is a finite number.
func (h Homography) IsFinite() bool {
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (h Homography) normalized() Homography {
	if math.Abs(h[8]) < 1e-12 {
		return h
	}
	s := 1 / h[8]
	for i := range h {
		h[i] *= s
	}
	return h
}

// HomographyFromCorners computes the exact transform taking the four src
// corners onto the four dst corners.
func HomographyFromCorners(src, dst Quad) (Homography, error) {
	return estimateDLT(src[:], dst[:])
}

// estimateDLT fits a homography to four or more correspondences with the
// normalized direct linear transform. With exactly four it is exact.
func estimateDLT(src, dst []geom.Point) (Homography, error) {
	n := len(src)
	if n < 4 || n != len(dst) {
		return Homography{}, fmt.Errorf("%w: need at least 4 correspondences, got %d", ErrInsufficientMatches, n)
	}

	t1, ns, err := normalizePoints(src)
	if err != nil {
		return Homography{}, err
	}
	t2, nd, err := normalizePoints(dst)
	if err != nil {
		return Homography{}, err
	}

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return Homography{}, fmt.Errorf("%w: SVD did not converge", ErrRobustFitFailure)
	}
	values := svd.Values(nil)
	if len(values) < 8 || values[0] == 0 || values[7] <= 1e-10*values[0] {
		return Homography{}, fmt.Errorf("%w: degenerate point configuration", ErrRobustFitFailure)
	}

	var v mat.Dense
	svd.VTo(&v)
	var hn Homography
	for i := 0; i < 9; i++ {
		hn[i] = v.At(i, 8)
	}

	t2inv, err := t2.Inverse()
	if err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrRobustFitFailure, err)
	}
	h := t2inv.Mul(hn).Mul(t1)
	if math.Abs(h[8]) < 1e-12 || !h.IsFinite() {
		return Homography{}, fmt.Errorf("%w: homography at infinity", ErrRobustFitFailure)
	}
	return h.normalized(), nil
}

// normalizePoints translates points to their centroid and scales them so the
// mean distance from the origin is sqrt(2).
func normalizePoints(points []geom.Point) (Homography, []geom.Point, error) {
	var c geom.Point
	for _, p := range points {
		c = c.Add(p)
	}
	c = c.Scale(1 / float64(len(points)))

	var meanDist float64
	for _, p := range points {
		meanDist += p.Distance(c)
	}
	meanDist /= float64(len(points))
	if meanDist < 1e-12 {
		return Homography{}, nil, fmt.Errorf("%w: coincident points", ErrRobustFitFailure)
	}

	s := math.Sqrt2 / meanDist
	t := Homography{s, 0, -s * c.X, 0, s, -s * c.Y, 0, 0, 1}
	return t, t.ApplyAll(points), nil
}
