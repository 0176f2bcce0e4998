package mesh

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"
)

// Pipeline wires the alignment stages together for one offline run.
type Pipeline struct {
	Config *Config

	// Extractor runs the feature prepass; nil keeps whatever features the
	// frames already carry.
	Extractor FeatureExtractor
	Matcher   DescriptorMatcher
	Solver    HomographySolver
	Flow      FlowTracker

	// Publisher is optional.
	Publisher *Publisher

	// LandmarkCachePath, when set, is loaded instead of recomputing
	// landmarks and written after computing them.
	LandmarkCachePath string
}

// Result is the outcome of a pipeline run.
type Result struct {
	InputBounds []*Quad // initial bounds after filtering and smoothing
	Bounds      []*Quad // aligned output, filtered
	Landmarks   []*FinalLandmark
	Summary     RunSummary
}

// Run aligns frames against the initial bound sequence. frames[i] is frame i
// (nil when absent) and initial[i] its GPS-derived bound (nil when unknown).
// Per-frame failures leave gaps in Result.Bounds; only I/O and cancellation
// errors are returned.
func (p *Pipeline) Run(ctx context.Context, frames []*Frame, initial []*Quad) (*Result, error) {
	cfg := p.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	start := time.Now()

	// GPS footprints are noisy, so every one with a usable window is refit
	inputCfg := cfg.Bounds
	inputCfg.Refit = true
	input := Smooth2(FilterBounds(initial, inputCfg), inputCfg)
	AttachBounds(frames, input)
	log.Printf("pipeline: %d frames, %d of %d initial bounds usable", len(frames), CountBounds(input), len(initial))

	if p.Extractor != nil {
		if err := ComputeFeatures(ctx, p.Extractor, frames, cfg.Features); err != nil {
			return nil, err
		}
	}
	tFeatures := time.Now()

	landmarks, err := p.landmarks(cfg, frames)
	if err != nil {
		return nil, err
	}
	tLandmarks := time.Now()

	seed := cfg.Landmarks.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	pool := SelectOkay(cfg.Landmarks, landmarks, rand.New(rand.NewSource(seed)))
	okay := 0
	for _, l := range landmarks {
		if l.Okay {
			okay++
		}
	}
	log.Printf("pipeline: %d landmarks, %d okay, match pool %d", len(landmarks), okay, len(pool))

	aligner := NewAligner(cfg, pool, p.Matcher, p.Solver, p.Flow)
	aligner.Extractor = p.Extractor
	aligned := aligner.Align(frames)
	for len(aligned) < len(initial) {
		aligned = append(aligned, nil)
	}
	out := FilterBounds(aligned, cfg.Bounds)
	tAlign := time.Now()

	res := &Result{
		InputBounds: input,
		Bounds:      out,
		Landmarks:   landmarks,
		Summary: RunSummary{
			Frames:    len(out),
			Aligned:   CountBounds(out),
			Missing:   len(out) - CountBounds(out),
			Landmarks: len(landmarks),
			Okay:      okay,
		},
	}

	if p.Publisher != nil {
		if err := p.Publisher.PublishBounds(out); err != nil {
			log.Printf("Warning: publishing bounds: %v", err)
		}
		if err := p.Publisher.PublishSummary(res.Summary); err != nil {
			log.Printf("Warning: publishing summary: %v", err)
		}
		res.Summary.RunID = p.Publisher.RunID()
		log.Printf("pipeline: published %d frame bounds", p.Publisher.Published())
	}

	log.Printf("pipeline: features %v, landmarks %v, align %v",
		tFeatures.Sub(start).Round(time.Millisecond),
		tLandmarks.Sub(tFeatures).Round(time.Millisecond),
		tAlign.Sub(tLandmarks).Round(time.Millisecond))
	return res, nil
}

func (p *Pipeline) landmarks(cfg *Config, frames []*Frame) ([]*FinalLandmark, error) {
	if p.LandmarkCachePath != "" {
		cache, err := LoadLandmarks(p.LandmarkCachePath)
		if err != nil {
			return nil, err
		}
		if cache != nil {
			log.Printf("pipeline: loaded %d landmarks from %s", len(cache.Landmarks), p.LandmarkCachePath)
			return cache.Landmarks, nil
		}
	}

	landmarks := FindLandmarks(cfg, p.Matcher, frames)

	if p.LandmarkCachePath != "" {
		cache := &LandmarkCache{Landmarks: landmarks, Frames: len(frames)}
		if err := SaveLandmarks(p.LandmarkCachePath, cache); err != nil {
			return nil, fmt.Errorf("saving landmarks: %w", err)
		}
	}
	return landmarks, nil
}
