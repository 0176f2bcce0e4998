package mesh

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kwv/skymesh/geom"
)

// GeometryType represents the GeoJSON geometry type
type GeometryType string

const (
	GeometryPoint      GeometryType = "Point"
	GeometryLineString GeometryType = "LineString"
	GeometryPolygon    GeometryType = "Polygon"
)

// Geometry represents a GeoJSON geometry object
type Geometry struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature represents a GeoJSON feature with geometry and properties
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   *Geometry              `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
	ID         interface{}            `json:"id,omitempty"`
}

// FeatureCollection represents a GeoJSON FeatureCollection
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection creates a new empty FeatureCollection
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]*Feature, 0),
	}
}

// AddFeature appends a feature to the collection
func (fc *FeatureCollection) AddFeature(f *Feature) {
	fc.Features = append(fc.Features, f)
}

// NewFeature creates a Feature with the given geometry and properties
func NewFeature(g *Geometry, props map[string]interface{}) *Feature {
	if props == nil {
		props = make(map[string]interface{})
	}
	return &Feature{
		Type:       "Feature",
		Geometry:   g,
		Properties: props,
	}
}

func newGeometry(t GeometryType, coords interface{}) *Geometry {
	coordsJSON, _ := json.Marshal(coords)
	return &Geometry{Type: t, Coordinates: coordsJSON}
}

// PointGeometry converts a world point to a GeoJSON Point.
func PointGeometry(p geom.Point) *Geometry {
	return newGeometry(GeometryPoint, [2]float64{p.X, p.Y})
}

// QuadToPolygon converts a bound to a closed GeoJSON Polygon ring.
func QuadToPolygon(q Quad) *Geometry {
	ring := q.Ring()
	coords := make([][2]float64, len(ring))
	for i, p := range ring {
		coords[i] = [2]float64{p.X(), p.Y()}
	}
	return newGeometry(GeometryPolygon, [][][2]float64{coords})
}

// PointsToLineString converts a sequence of world points to a LineString.
func PointsToLineString(points []geom.Point) *Geometry {
	coords := make([][2]float64, len(points))
	for i, p := range points {
		coords[i] = [2]float64{p.X, p.Y}
	}
	return newGeometry(GeometryLineString, coords)
}

// FootprintCollection exports each present bound as a Polygon feature with
// its frame index, plus a LineString through the footprint centers when at
// least two frames are present.
func FootprintCollection(bounds []*Quad) *FeatureCollection {
	fc := NewFeatureCollection()
	var centers []geom.Point
	for i, b := range bounds {
		if b == nil {
			continue
		}
		f := NewFeature(QuadToPolygon(*b), map[string]interface{}{
			"frame": i,
			"area":  b.Area(),
		})
		f.ID = i
		fc.AddFeature(f)
		centers = append(centers, b.Center())
	}
	if len(centers) >= 2 {
		fc.AddFeature(NewFeature(PointsToLineString(centers), map[string]interface{}{
			"kind": "trajectory",
		}))
	}
	return fc
}

// LandmarkCollection exports landmarks as Point features. When okayOnly is
// set, landmarks not marked okay are left out.
func LandmarkCollection(landmarks []*FinalLandmark, okayOnly bool) *FeatureCollection {
	fc := NewFeatureCollection()
	for _, l := range landmarks {
		if okayOnly && !l.Okay {
			continue
		}
		f := NewFeature(PointGeometry(l.Position), map[string]interface{}{
			"n":    l.N,
			"h":    l.Height,
			"okay": l.Okay,
		})
		f.ID = l.ID
		fc.AddFeature(f)
	}
	return fc
}

// SaveGeoJSON writes fc to path.
func SaveGeoJSON(path string, fc *FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing GeoJSON file: %w", err)
	}
	return nil
}
