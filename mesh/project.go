package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/kwv/skymesh/geom"
)

// Detection is one detected object outline. Points are in frame pixels on
// input; after projection they are world coordinates and OrigPoints holds the
// pixel outline.
type Detection struct {
	Points     [][2]float64 `json:"Points"`
	OrigPoints [][2]float64 `json:"OrigPoints,omitempty"`
}

// LoadDetections reads per-frame detection lists.
func LoadDetections(path string) ([][]Detection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading detections file: %w", err)
	}
	var detections [][]Detection
	if err := json.Unmarshal(data, &detections); err != nil {
		return nil, fmt.Errorf("parsing detections %s: %w", path, err)
	}
	return detections, nil
}

// SaveDetections writes per-frame detection lists.
func SaveDetections(path string, detections [][]Detection) error {
	data, err := json.Marshal(detections)
	if err != nil {
		return fmt.Errorf("marshaling detections: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing detections file: %w", err)
	}
	return nil
}

// ProjectDetections maps each frame's detections into world coordinates
// through the homography taking a width x height frame onto that frame's
// bound. Frames without a bound get an empty list.
func ProjectDetections(detections [][]Detection, bounds []*Quad, width, height float64) [][]Detection {
	corners := FrameCorners(width, height)
	out := make([][]Detection, len(detections))
	for i, dlist := range detections {
		out[i] = []Detection{}
		if i >= len(bounds) || bounds[i] == nil || len(dlist) == 0 {
			continue
		}
		H, err := HomographyFromCorners(corners, *bounds[i])
		if err != nil {
			log.Printf("Warning: project: frame %d: %v", i, err)
			continue
		}

		projected := make([]Detection, len(dlist))
		for j, d := range dlist {
			pts := make([][2]float64, len(d.Points))
			for k, p := range d.Points {
				w := H.Apply(geom.Pt(p[0], p[1]))
				pts[k] = [2]float64{math.Round(w.X), math.Round(w.Y)}
			}
			projected[j] = Detection{Points: pts, OrigPoints: d.Points}
		}
		out[i] = projected
	}
	return out
}
