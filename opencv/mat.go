// Package opencv implements the mesh collaborator interfaces on top of
// OpenCV through gocv: SIFT feature extraction, brute-force L1 descriptor
// matching, RANSAC homography fitting and pyramidal Lucas-Kanade flow.
//
// Every gocv.Mat created here is closed before returning; callers only see
// plain Go values.
package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/kwv/skymesh/geom"
	"github.com/kwv/skymesh/mesh"
)

// grayMat converts img to a single-channel 8-bit Mat.
func grayMat(img image.Image) (gocv.Mat, error) {
	gray := mesh.Grayscale(img)
	if gray == nil {
		return gocv.NewMat(), fmt.Errorf("nil image")
	}
	return gocv.ImageGrayToMatGray(gray)
}

// pointsMat packs points into an N x 1 two-channel float32 Mat.
func pointsMat(points []geom.Point) gocv.Mat {
	m := gocv.NewMatWithSize(len(points), 1, gocv.MatTypeCV32FC2)
	for i, p := range points {
		m.SetFloatAt(i, 0, float32(p.X))
		m.SetFloatAt(i, 1, float32(p.Y))
	}
	return m
}

// matPoints unpacks an N x 1 two-channel float32 Mat.
func matPoints(m gocv.Mat) []geom.Point {
	out := make([]geom.Point, m.Rows())
	for i := range out {
		out[i] = geom.Pt(float64(m.GetFloatAt(i, 0)), float64(m.GetFloatAt(i, 1)))
	}
	return out
}

// descriptorMat packs equal-length descriptors into a rows x dims float32 Mat.
func descriptorMat(descs [][]float32) gocv.Mat {
	if len(descs) == 0 {
		return gocv.NewMat()
	}
	dims := len(descs[0])
	m := gocv.NewMatWithSize(len(descs), dims, gocv.MatTypeCV32F)
	for r, d := range descs {
		for c := 0; c < dims && c < len(d); c++ {
			m.SetFloatAt(r, c, d[c])
		}
	}
	return m
}

// matDescriptors unpacks a float32 descriptor Mat row by row.
func matDescriptors(m gocv.Mat) [][]float32 {
	out := make([][]float32, m.Rows())
	for r := range out {
		row := make([]float32, m.Cols())
		for c := range row {
			row[c] = m.GetFloatAt(r, c)
		}
		out[r] = row
	}
	return out
}
