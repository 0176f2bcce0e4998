package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kwv/skymesh/mesh"
	"github.com/kwv/skymesh/opencv"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *mesh.Config
	MQTTClient *mesh.MQTTClient
	Publisher  *mesh.Publisher

	// Collaborators; NewApp wires the OpenCV implementations.
	Extractor mesh.FeatureExtractor
	Matcher   mesh.DescriptorMatcher
	Solver    mesh.HomographySolver
	Flow      mesh.FlowTracker

	// CLI Flags (effectively dependencies)
	ConfigFile     string
	FramesDir      string
	BoundsFile     string
	OutputFile     string
	ReferenceFile  string
	DetectionsFile string
	LandmarkCache  string
	GeoJSONFile    string
	Scale          int
	FrameWidth     float64
	FrameHeight    float64
	Interpolate    bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Extractor: opencv.SIFTExtractor{},
		Matcher:   opencv.BFMatcher{},
		Solver:    opencv.NewHomographySolver(),
		Flow:      opencv.LKTracker{},
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.FramesDir = opts.FramesDir
	a.BoundsFile = opts.BoundsFile
	a.OutputFile = opts.OutputFile
	a.ReferenceFile = opts.ReferenceFile
	a.DetectionsFile = opts.DetectionsFile
	a.LandmarkCache = opts.LandmarkCache
	a.GeoJSONFile = opts.GeoJSONFile
	a.Scale = opts.Scale
	a.FrameWidth = opts.FrameWidth
	a.FrameHeight = opts.FrameHeight
	a.Interpolate = opts.Interpolate
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist.
func (a *App) loadConfig() error {
	if a.Config != nil {
		return nil
	}
	if _, err := os.Stat(a.ConfigFile); os.IsNotExist(err) {
		log.Printf("Config %s not found, using defaults", a.ConfigFile)
		a.Config = mesh.DefaultConfig()
		return nil
	}
	cfg, err := mesh.LoadConfig(a.ConfigFile)
	if err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

// RunAlign runs the full pipeline: frames and GPS bounds in, aligned bounds out.
func (a *App) RunAlign() error {
	if err := a.loadConfig(); err != nil {
		return err
	}

	initial, err := mesh.LoadBounds(a.BoundsFile)
	if err != nil {
		return err
	}
	frames, err := mesh.LoadFrames(a.FramesDir, a.Scale)
	if err != nil {
		return err
	}

	client, err := mesh.ConnectMQTT(a.Config, 3)
	if err != nil {
		log.Printf("Warning: %v; results will not be published", err)
	}
	if client != nil {
		a.MQTTClient = client
		a.Publisher = mesh.NewPublisherFromConfig(client.GetClient(), a.Config.MQTT)
		defer client.Disconnect()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &mesh.Pipeline{
		Config:            a.Config,
		Extractor:         a.Extractor,
		Matcher:           a.Matcher,
		Solver:            a.Solver,
		Flow:              a.Flow,
		Publisher:         a.Publisher,
		LandmarkCachePath: a.LandmarkCache,
	}
	res, err := p.Run(ctx, frames, initial)
	if err != nil {
		return err
	}

	if err := mesh.SaveBounds(a.OutputFile, res.Bounds); err != nil {
		return err
	}
	fmt.Printf("Aligned %d/%d frames (%d landmarks, %d okay) -> %s\n",
		res.Summary.Aligned, res.Summary.Frames, res.Summary.Landmarks, res.Summary.Okay, a.OutputFile)

	if a.GeoJSONFile != "" {
		fc := mesh.FootprintCollection(res.Bounds)
		for _, f := range mesh.LandmarkCollection(res.Landmarks, true).Features {
			fc.AddFeature(f)
		}
		if err := mesh.SaveGeoJSON(a.GeoJSONFile, fc); err != nil {
			return err
		}
		fmt.Printf("GeoJSON written to %s\n", a.GeoJSONFile)
	}
	return nil
}

// RunSmoothOnly filters and smooths a bound sequence without touching frames.
func (a *App) RunSmoothOnly() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	bounds, err := mesh.LoadBounds(a.BoundsFile)
	if err != nil {
		return err
	}

	filtered := mesh.FilterBounds(bounds, a.Config.Bounds)
	if a.Interpolate {
		filtered = mesh.SmoothBounds(filtered, a.Config.Bounds)
	}
	smoothed := mesh.Smooth2(filtered, a.Config.Bounds)
	if err := mesh.SaveBounds(a.OutputFile, smoothed); err != nil {
		return err
	}
	fmt.Printf("Bounds: %d in, %d after filter, %d after smoothing -> %s\n",
		mesh.CountBounds(bounds), mesh.CountBounds(filtered), mesh.CountBounds(smoothed), a.OutputFile)
	return nil
}

// RunInitConfig writes the default configuration to the config path. An
// existing file is left alone.
func (a *App) RunInitConfig() error {
	if _, err := os.Stat(a.ConfigFile); err == nil {
		return fmt.Errorf("config %s already exists", a.ConfigFile)
	}
	if err := mesh.SaveConfig(a.ConfigFile, mesh.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to %s\n", a.ConfigFile)
	return nil
}

// RunScore compares a bound sequence against a reference sequence.
func (a *App) RunScore() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if a.ReferenceFile == "" {
		return fmt.Errorf("--score requires --reference")
	}
	bounds, err := mesh.LoadBounds(a.BoundsFile)
	if err != nil {
		return err
	}
	reference, err := mesh.LoadBounds(a.ReferenceFile)
	if err != nil {
		return err
	}

	score := mesh.ScoreBounds(bounds, reference, a.Config.Bounds)
	fmt.Printf("compared=%d missing=%d err=%.1f\n", score.Compared, score.Missing, score.MeanError)
	return nil
}

// RunProject maps pixel-space detections into world space.
func (a *App) RunProject() error {
	if a.DetectionsFile == "" {
		return fmt.Errorf("--project requires --detections")
	}
	bounds, err := mesh.LoadBounds(a.BoundsFile)
	if err != nil {
		return err
	}
	detections, err := mesh.LoadDetections(a.DetectionsFile)
	if err != nil {
		return err
	}

	projected := mesh.ProjectDetections(detections, bounds, a.FrameWidth, a.FrameHeight)
	if err := mesh.SaveDetections(a.OutputFile, projected); err != nil {
		return err
	}
	fmt.Printf("Projected detections for %d frames -> %s\n", len(projected), a.OutputFile)
	return nil
}
