package mesh

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/skymesh/geom"
)

func quadPtr(x, y, w, h float64) *Quad {
	q := rectQuad(x, y, w, h)
	return &q
}

// linearBounds is n nominal-size bounds moving 10 units right per frame.
func linearBounds(n int) []*Quad {
	bounds := make([]*Quad, n)
	for i := range bounds {
		bounds[i] = quadPtr(float64(10*i), 0, 1240, 700)
	}
	return bounds
}

func TestSaveLoadBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "bounds.json")
	bounds := []*Quad{
		quadPtr(0.4, 10.6, 1240, 700),
		nil,
		{geom.Pt(-5, -5), geom.Pt(1230, 2), geom.Pt(1236, 705), geom.Pt(-1, 698)},
	}

	require.NoError(t, SaveBounds(path, bounds))
	got, err := LoadBounds(path)
	require.NoError(t, err)

	want := []*Quad{
		quadPtr(0, 11, 1240, 700),
		nil,
		bounds[2],
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bounds mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveBounds_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, SaveBounds(path, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestLoadBounds_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "nope.json")},
		{name: "not json", path: write("bad.json", "{")},
		{name: "three corners", path: write("three.json", "[[[0,0],[1,0],[1,1]]]")},
		{name: "short corner", path: write("short.json", "[[[0,0],[1,0],[1,1],[0]]]")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBounds(tt.path)
			assert.Error(t, err)
		})
	}
}

func TestCountBounds(t *testing.T) {
	assert.Equal(t, 0, CountBounds(nil))
	assert.Equal(t, 2, CountBounds([]*Quad{quadPtr(0, 0, 1, 1), nil, quadPtr(0, 0, 1, 1)}))
}

func TestBoundPlausible(t *testing.T) {
	cfg := DefaultConfig().Bounds

	tests := []struct {
		name  string
		bound Quad
		want  bool
	}{
		{name: "nominal", bound: rectQuad(0, 0, 1240, 700), want: true},
		{name: "at tolerance", bound: rectQuad(0, 0, 1440, 500), want: true},
		{name: "too wide", bound: rectQuad(0, 0, 1441, 700), want: false},
		{name: "too short", bound: rectQuad(0, 0, 1240, 499), want: false},
		{
			name:  "one edge collapsed",
			bound: Quad{geom.Pt(0, 0), geom.Pt(1240, 0), geom.Pt(900, 700), geom.Pt(0, 700)},
			want:  false,
		},
		{name: "degenerate", bound: Quad{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BoundPlausible(tt.bound, cfg))
		})
	}
}

func TestFilterBounds(t *testing.T) {
	cfg := DefaultConfig().Bounds
	input := []*Quad{
		quadPtr(0, 0, 1240, 700),
		nil,
		quadPtr(0, 0, 600, 700),
		quadPtr(5, 5, 1300, 650),
	}
	orig := make([]*Quad, len(input))
	copy(orig, input)

	out := FilterBounds(input, cfg)

	require.Len(t, out, len(input))
	assert.Same(t, input[0], out[0])
	assert.Nil(t, out[1])
	assert.Nil(t, out[2])
	assert.Same(t, input[3], out[3])
	assert.Equal(t, orig, input, "input must not be modified")

	for i := range out {
		if out[i] != nil {
			assert.NotNil(t, input[i])
			assert.True(t, BoundPlausible(*out[i], cfg))
		}
	}
}

func TestSmooth2_FillsGaps(t *testing.T) {
	cfg := DefaultConfig().Bounds
	bounds := linearBounds(16)
	bounds[4] = nil
	bounds[9] = nil
	bounds[10] = nil

	out := Smooth2(bounds, cfg)

	want := linearBounds(16)
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("smoothed bounds mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, bounds[4], "input must not be modified")
}

func TestSmooth2_NoWindow(t *testing.T) {
	cfg := DefaultConfig().Bounds
	bounds := append(linearBounds(4), nil)

	out := Smooth2(bounds, cfg)
	assert.Nil(t, out[4], "no bounds follow the last frame")
	assert.Equal(t, 4, CountBounds(out))
}

func TestSmooth2_Idempotent(t *testing.T) {
	full := linearBounds(20)
	full[7] = quadPtr(73, 2, 1250, 690)

	for _, refit := range []bool{false, true} {
		cfg := DefaultConfig().Bounds
		cfg.Refit = refit

		once := Smooth2(linearBounds(20), cfg)
		twice := Smooth2(once, cfg)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("refit=%v: second pass changed bounds (-first +second):\n%s", refit, diff)
		}
		if diff := cmp.Diff(linearBounds(20), once); diff != "" {
			t.Errorf("refit=%v: linear sequence changed (-want +got):\n%s", refit, diff)
		}
	}

	// observed bounds are kept as is without refit
	out := Smooth2(full, DefaultConfig().Bounds)
	assert.Same(t, full[7], out[7])
}

func TestSmoothBounds(t *testing.T) {
	cfg := DefaultConfig().Bounds

	t.Run("interpolates overlapping neighbours", func(t *testing.T) {
		bounds := []*Quad{nil, quadPtr(0, 0, 1240, 700), nil, nil, quadPtr(30, 0, 1240, 700)}
		out := SmoothBounds(bounds, cfg)

		assert.Nil(t, out[0])
		want := []*Quad{nil, quadPtr(0, 0, 1240, 700), quadPtr(10, 0, 1240, 700), quadPtr(20, 0, 1240, 700), quadPtr(30, 0, 1240, 700)}
		if diff := cmp.Diff(want, out); diff != "" {
			t.Errorf("interpolated bounds mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("leaves jumps alone", func(t *testing.T) {
		bounds := []*Quad{quadPtr(0, 0, 1240, 700), nil, quadPtr(2000, 0, 1240, 700)}
		out := SmoothBounds(bounds, cfg)
		assert.Nil(t, out[1])
	})

	t.Run("trailing gap", func(t *testing.T) {
		bounds := []*Quad{quadPtr(0, 0, 1240, 700), nil}
		out := SmoothBounds(bounds, cfg)
		assert.Nil(t, out[1])
	})
}

func TestScoreBounds(t *testing.T) {
	cfg := DefaultConfig().Bounds
	out := []*Quad{quadPtr(3, 4, 1240, 700), nil, quadPtr(0, 0, 1240, 700)}
	reference := []*Quad{
		quadPtr(0, 0, 1240, 700),
		quadPtr(0, 0, 1240, 700),
		quadPtr(600, 0, 500, 300), // implausible, not scored
		quadPtr(0, 0, 1240, 700),  // beyond the output
	}

	score := ScoreBounds(out, reference, cfg)
	assert.Equal(t, BoundScore{Compared: 3, Missing: 2, MeanError: 5}, score)

	assert.Equal(t, BoundScore{}, ScoreBounds(out, nil, cfg))
}
