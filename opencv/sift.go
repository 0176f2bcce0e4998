package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/kwv/skymesh/geom"
	"github.com/kwv/skymesh/mesh"
)

// SIFTExtractor implements mesh.FeatureExtractor with cv::SIFT.
// It is safe for concurrent use; each call builds its own detector.
type SIFTExtractor struct{}

// Extract detects SIFT keypoints on the grayscale image and returns their
// positions with 128-d descriptors.
func (SIFTExtractor) Extract(img image.Image) (*mesh.FeatureSet, error) {
	src, err := grayMat(img)
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	defer src.Close()

	sift := gocv.NewSIFT()
	defer sift.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := sift.DetectAndCompute(src, mask)
	defer desc.Close()

	fs := &mesh.FeatureSet{
		Points:      make([]geom.Point, len(kps)),
		Descriptors: matDescriptors(desc),
	}
	for i, kp := range kps {
		fs.Points[i] = geom.Pt(kp.X, kp.Y)
	}
	if err := fs.Validate(); err != nil {
		return nil, err
	}
	return fs, nil
}
