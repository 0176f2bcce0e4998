package mesh

import (
	"fmt"
	"math"

	"github.com/kwv/skymesh/geom"
)

// CameraPose is the camera's estimated world position and height above ground.
type CameraPose struct {
	Center geom.Point
	Height float64
}

// ViewingAngles converts a world point into angles from the camera:
// tan(thetaX) = dx / h, tan(thetaY) = dy / h.
func (p CameraPose) ViewingAngles(world geom.Point) Angles {
	return Angles{
		X: math.Atan((world.X - p.Center.X) / p.Height),
		Y: math.Atan((world.Y - p.Center.Y) / p.Height),
	}
}

// EstimatePose derives the camera pose from a frame's world footprint. The
// footprint width, and its height scaled by the aspect ratio, are averaged
// into one width estimate w, and h = w / 2 / tan(fov / 2).
func EstimatePose(cam CameraConfig, bound Quad) (CameraPose, error) {
	widthEstimate := (bound.Width() + bound.Height()*cam.AspectRatio) / 2
	height := widthEstimate / 2 / math.Tan(cam.FOVRadians()/2)
	if !(height > 0) || math.IsInf(height, 0) {
		return CameraPose{}, fmt.Errorf("degenerate bound %v: camera height %g", bound, height)
	}
	return CameraPose{Center: bound.Center(), Height: height}, nil
}

// FrameAngles maps pixel positions in a w x h frame into world space through
// the homography defined by the frame corners and bound, then returns each
// position's viewing angles from the estimated camera pose.
func FrameAngles(cam CameraConfig, w, h int, bound Quad, pixels []geom.Point) (CameraPose, []Angles, error) {
	pose, err := EstimatePose(cam, bound)
	if err != nil {
		return CameraPose{}, nil, err
	}

	H, err := HomographyFromCorners(FrameCorners(float64(w), float64(h)), bound)
	if err != nil {
		return CameraPose{}, nil, fmt.Errorf("frame to world homography: %w", err)
	}

	angles := make([]Angles, len(pixels))
	for i, px := range pixels {
		angles[i] = pose.ViewingAngles(H.Apply(px))
	}
	return pose, angles, nil
}
