package mesh

import (
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// Grayscale converts img to 8-bit gray. Gray images are returned as is.
func Grayscale(img image.Image) *image.Gray {
	if img == nil {
		return nil
	}
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Downscale shrinks img by an integer factor.
func Downscale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()/factor, b.Dy()/factor))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// LoadFrames reads NNNNNN.jpg frames from dir and returns them indexed by
// frame number, nil where a frame is absent. Each frame is downscaled by
// scale.
func LoadFrames(dir string, scale int) ([]*Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	type named struct {
		index int
		path  string
	}
	var files []named
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(e.Name(), ".jpg"))
		if err != nil || idx < 0 {
			log.Printf("Warning: skipping %s: not a frame number", e.Name())
			continue
		}
		files = append(files, named{index: idx, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].index < files[j].index })

	var frames []*Frame
	for _, f := range files {
		img, err := readJPEG(f.path)
		if err != nil {
			return nil, err
		}
		for len(frames) <= f.index {
			frames = append(frames, nil)
		}
		frames[f.index] = &Frame{Index: f.index, Image: Downscale(img, scale)}
	}
	log.Printf("Loaded %d frames from %s", len(files), dir)
	return frames, nil
}

func readJPEG(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening frame: %w", err)
	}
	defer file.Close()

	img, err := jpeg.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// AttachBounds sets each frame's initial bound from bounds, which is indexed
// by frame number.
func AttachBounds(frames []*Frame, bounds []*Quad) {
	for i, f := range frames {
		if f == nil {
			continue
		}
		f.Bound = nil
		if i < len(bounds) {
			f.Bound = bounds[i]
		}
	}
}
