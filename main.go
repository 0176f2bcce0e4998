package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kwv/skymesh/mesh"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line.
type AppOptions struct {
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

	Align      bool
	SmoothOnly bool
	Score      bool
	Project    bool
	InitConfig bool
}

// Runner is the set of modes the CLI can dispatch to.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunAlign() error
	RunSmoothOnly() error
	RunScore() error
	RunProject() error
	RunInitConfig() error
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("skymesh", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.FramesDir, "frames", "frames", "Directory of NNNNNN.jpg video frames")
	fs.StringVar(&opts.BoundsFile, "bounds", "align-gps.json", "Initial (GPS-derived) bound sequence")
	fs.StringVar(&opts.OutputFile, "output", "align-out.json", "Output bound sequence")
	fs.StringVar(&opts.ReferenceFile, "reference", "", "Reference bound sequence for --score")
	fs.StringVar(&opts.DetectionsFile, "detections", "", "Pixel-space detections for --project")
	fs.StringVar(&opts.LandmarkCache, "landmark-cache", mesh.DefaultLandmarkCachePath, "Landmark cache file (loaded if present, written otherwise; empty disables)")
	fs.StringVar(&opts.GeoJSONFile, "geojson", "", "Also export footprints and landmarks as GeoJSON")
	fs.IntVar(&opts.Scale, "scale", 2, "Downscale factor applied to frames")
	fs.Float64Var(&opts.FrameWidth, "frame-width", 1920, "Detector frame width for --project")
	fs.Float64Var(&opts.FrameHeight, "frame-height", 1080, "Detector frame height for --project")
	fs.BoolVar(&opts.Interpolate, "interpolate", false, "With --smooth-only, fill short gaps from their neighbours before smoothing")
	fs.BoolVar(&opts.Align, "align", false, "Run the full alignment pipeline")
	fs.BoolVar(&opts.SmoothOnly, "smooth-only", false, "Filter and smooth --bounds into --output and exit")
	fs.BoolVar(&opts.Score, "score", false, "Score --bounds against --reference and exit")
	fs.BoolVar(&opts.Project, "project", false, "Project --detections into world space using --bounds")
	fs.BoolVar(&opts.InitConfig, "init-config", false, "Write the default configuration to --config and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "skymesh version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.Align:
		return app.RunAlign()
	case opts.SmoothOnly:
		return app.RunSmoothOnly()
	case opts.Score:
		return app.RunScore()
	case opts.Project:
		return app.RunProject()
	case opts.InitConfig:
		return app.RunInitConfig()
	}

	fmt.Fprintln(out, "Use --align to align frames to world coordinates")
	fmt.Fprintln(out, "Use --smooth-only to filter and interpolate a bound sequence")
	fmt.Fprintln(out, "Use --score to compare a bound sequence against a reference")
	fmt.Fprintln(out, "Use --project to map detections into world space")
	fmt.Fprintln(out, "Use --init-config to write a default config.yaml")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - camera, landmark, alignment and MQTT settings")
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Error: %v", err)
	}
}
