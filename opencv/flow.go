package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/kwv/skymesh/geom"
	"github.com/kwv/skymesh/mesh"
)

// LKTracker implements mesh.FlowTracker with cv::calcOpticalFlowPyrLK.
type LKTracker struct{}

// Track follows points from prev into cur.
func (LKTracker) Track(prev, cur *image.Gray, points []geom.Point, params mesh.FlowParams) (mesh.FlowResult, error) {
	if prev == nil || cur == nil {
		return mesh.FlowResult{}, fmt.Errorf("missing frame")
	}
	if len(points) == 0 {
		return mesh.FlowResult{}, nil
	}

	prevMat, err := gocv.ImageGrayToMatGray(prev)
	if err != nil {
		return mesh.FlowResult{}, fmt.Errorf("converting previous frame: %w", err)
	}
	defer prevMat.Close()
	curMat, err := gocv.ImageGrayToMatGray(cur)
	if err != nil {
		return mesh.FlowResult{}, fmt.Errorf("converting current frame: %w", err)
	}
	defer curMat.Close()

	prevPts := pointsMat(points)
	defer prevPts.Close()
	nextPts := gocv.NewMat()
	defer nextPts.Close()
	status := gocv.NewMat()
	defer status.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, params.MaxIter, params.Epsilon)
	gocv.CalcOpticalFlowPyrLKWithParams(prevMat, curMat, prevPts, nextPts, &status, &errMat,
		image.Pt(params.Window, params.Window), params.Levels, criteria, 0, 1e-4)

	if nextPts.Rows() != len(points) || status.Rows() != len(points) {
		return mesh.FlowResult{}, fmt.Errorf("tracker returned %d points for %d inputs", nextPts.Rows(), len(points))
	}

	res := mesh.FlowResult{
		Points: matPoints(nextPts),
		Status: make([]bool, len(points)),
		Errors: make([]float64, len(points)),
	}
	for i := range points {
		res.Status[i] = status.GetUCharAt(i, 0) == 1
		if errMat.Rows() == len(points) {
			res.Errors[i] = float64(errMat.GetFloatAt(i, 0))
		}
	}
	return res, nil
}
