package mesh

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ComputeFeatures runs extractor over every stride-th frame concurrently and
// stores the result in Frame.Features. Other frames are left with nil
// features. Frames are independent, so the only shared state is each
// frame's own Features field.
//
// A failed extraction is logged and leaves that frame without features; only
// context cancellation aborts the prepass.
func ComputeFeatures(ctx context.Context, extractor FeatureExtractor, frames []*Frame, cfg FeatureConfig) error {
	stride := cfg.Stride
	if stride <= 0 {
		stride = 1
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	computed := 0
	for i, f := range frames {
		if f == nil || f.Image == nil || i%stride != 0 {
			continue
		}
		computed++
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fs, err := extractor.Extract(f.Image)
			if err != nil {
				log.Printf("Warning: features: frame %d: %v", f.Index, err)
				return nil
			}
			if fs == nil {
				return nil
			}
			if err := fs.Validate(); err != nil {
				log.Printf("Warning: features: frame %d: %v", f.Index, err)
				return nil
			}
			f.Features = fs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("feature prepass: %w", err)
	}
	log.Printf("features: computed %d of %d frames (stride %d, %d workers)", computed, len(frames), stride, workers)
	return nil
}
