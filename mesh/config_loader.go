package mesh

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// CameraConfig describes the drone camera.
type CameraConfig struct {
	HorizontalFOV float64 `yaml:"horizontalFov" json:"horizontalFov"` // degrees
	AspectRatio   float64 `yaml:"aspectRatio" json:"aspectRatio"`     // width / height
	MaxSpeed      float64 `yaml:"maxSpeed" json:"maxSpeed"`           // world units per frame
}

// FOVRadians returns the horizontal field of view in radians.
func (c CameraConfig) FOVRadians() float64 {
	return c.HorizontalFOV * math.Pi / 180
}

// LandmarkConfig controls landmark tracking and consolidation.
type LandmarkConfig struct {
	GridCellSize        float64 `yaml:"gridCellSize" json:"gridCellSize"`
	Ratio               float64 `yaml:"ratio" json:"ratio"`
	MaxDistance         float64 `yaml:"maxDistance" json:"maxDistance"`
	MaxHeightDelta      float64 `yaml:"maxHeightDelta" json:"maxHeightDelta"`
	SampleSize          int     `yaml:"sampleSize" json:"sampleSize"`
	OkayMinObservations int     `yaml:"okayMinObservations" json:"okayMinObservations"` // consolidations, not raw observations
	OkayMinHeight       float64 `yaml:"okayMinHeight" json:"okayMinHeight"`
	Seed                int64   `yaml:"seed" json:"seed"` // 0 = seed from clock
}

// AlignConfig controls the frame-to-world aligner.
type AlignConfig struct {
	FeatureInterval int     `yaml:"featureInterval" json:"featureInterval"`
	MinMatches      int     `yaml:"minMatches" json:"minMatches"`
	RANSACThreshold float64 `yaml:"ransacThreshold" json:"ransacThreshold"`
	FlowGridStep    int     `yaml:"flowGridStep" json:"flowGridStep"`
	FlowWindow      int     `yaml:"flowWindow" json:"flowWindow"`
	FlowLevels      int     `yaml:"flowLevels" json:"flowLevels"`
	FlowMaxIter     int     `yaml:"flowMaxIter" json:"flowMaxIter"`
	FlowEpsilon     float64 `yaml:"flowEpsilon" json:"flowEpsilon"`
	FlowConsistency float64 `yaml:"flowConsistency" json:"flowConsistency"` // radius around the median displacement
	FlowMinFraction float64 `yaml:"flowMinFraction" json:"flowMinFraction"`
}

// BoundsConfig controls bound filtering and smoothing.
type BoundsConfig struct {
	NominalWidth  float64 `yaml:"nominalWidth" json:"nominalWidth"`
	NominalHeight float64 `yaml:"nominalHeight" json:"nominalHeight"`
	Tolerance     float64 `yaml:"tolerance" json:"tolerance"`
	MinRadius     int     `yaml:"minRadius" json:"minRadius"`
	MaxRadius     int     `yaml:"maxRadius" json:"maxRadius"`
	MinBefore     int     `yaml:"minBefore" json:"minBefore"`
	MinAfter      int     `yaml:"minAfter" json:"minAfter"`
	IoUThreshold  float64 `yaml:"iouThreshold" json:"iouThreshold"`
	Refit         bool    `yaml:"refit" json:"refit"` // also replace observed bounds with the windowed fit
}

// FeatureConfig controls the feature extraction prepass.
type FeatureConfig struct {
	Stride  int `yaml:"stride" json:"stride"`
	Workers int `yaml:"workers" json:"workers"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	QoS           byte   `yaml:"qos" json:"qos"`
	Retain        bool   `yaml:"retain" json:"retain"`
}

// Config represents the full configuration file
type Config struct {
	Camera    CameraConfig   `yaml:"camera" json:"camera"`
	Landmarks LandmarkConfig `yaml:"landmarks" json:"landmarks"`
	Align     AlignConfig    `yaml:"align" json:"align"`
	Bounds    BoundsConfig   `yaml:"bounds" json:"bounds"`
	Features  FeatureConfig  `yaml:"features" json:"features"`
	MQTT      MQTTConfig     `yaml:"mqtt" json:"mqtt"`
}

// DefaultConfig returns the settings tuned for 1920x1080 footage resized 2x
// against ortho-imagery at 4cm/pixel.
func DefaultConfig() *Config {
	return &Config{
		Camera: CameraConfig{
			HorizontalFOV: 63,
			AspectRatio:   1920.0 / 1080.0,
			MaxSpeed:      75,
		},
		Landmarks: LandmarkConfig{
			GridCellSize:        128,
			Ratio:               0.6,
			MaxDistance:         100,
			MaxHeightDelta:      100,
			SampleSize:          5000,
			OkayMinObservations: 2,
			OkayMinHeight:       1000,
		},
		Align: AlignConfig{
			FeatureInterval: 6,
			MinMatches:      10,
			RANSACThreshold: 5,
			FlowGridStep:    50,
			FlowWindow:      21,
			FlowLevels:      2,
			FlowMaxIter:     30,
			FlowEpsilon:     0.01,
			FlowConsistency: 4,
			FlowMinFraction: 0.7,
		},
		Bounds: BoundsConfig{
			NominalWidth:  1240,
			NominalHeight: 700,
			Tolerance:     200,
			MinRadius:     2,
			MaxRadius:     30,
			MinBefore:     2,
			MinAfter:      3,
			IoUThreshold:  0.7,
		},
		Features: FeatureConfig{
			Stride:  3,
			Workers: runtime.NumCPU(),
		},
		MQTT: MQTTConfig{
			PublishPrefix: "skymesh",
			Retain:        true,
		},
	}
}

// LoadConfig loads the configuration from a YAML file on top of DefaultConfig
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Camera.HorizontalFOV <= 0 || c.Camera.HorizontalFOV >= 180 {
		return fmt.Errorf("camera.horizontalFov must be in (0, 180), got %g", c.Camera.HorizontalFOV)
	}
	if c.Camera.AspectRatio <= 0 {
		return fmt.Errorf("camera.aspectRatio must be positive")
	}
	if c.Landmarks.GridCellSize <= 0 {
		return fmt.Errorf("landmarks.gridCellSize must be positive")
	}
	if c.Landmarks.Ratio <= 0 || c.Landmarks.Ratio > 1 {
		return fmt.Errorf("landmarks.ratio must be in (0, 1], got %g", c.Landmarks.Ratio)
	}
	if c.Align.MinMatches < 4 {
		return fmt.Errorf("align.minMatches must be at least 4 for a homography, got %d", c.Align.MinMatches)
	}
	if c.Align.FeatureInterval <= 0 {
		return fmt.Errorf("align.featureInterval must be positive")
	}
	if c.Align.FlowGridStep <= 0 {
		return fmt.Errorf("align.flowGridStep must be positive")
	}
	if c.Bounds.MinRadius < 1 || c.Bounds.MaxRadius <= c.Bounds.MinRadius {
		return fmt.Errorf("bounds radius range [%d, %d) is empty", c.Bounds.MinRadius, c.Bounds.MaxRadius)
	}
	if c.Features.Stride <= 0 {
		return fmt.Errorf("features.stride must be positive")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}
