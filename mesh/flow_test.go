package mesh

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/skymesh/geom"
)

// fakeFlow moves every point by a fixed shift. Points for which lost returns
// true are reported untracked; jitter, when set, overrides the shift per
// point.
type fakeFlow struct {
	shift  geom.Point
	lost   func(i int) bool
	jitter func(i int) geom.Point
	err    error
	calls  int
}

func (f *fakeFlow) Track(prev, cur *image.Gray, points []geom.Point, params FlowParams) (FlowResult, error) {
	f.calls++
	if f.err != nil {
		return FlowResult{}, f.err
	}
	res := FlowResult{
		Points: make([]geom.Point, len(points)),
		Status: make([]bool, len(points)),
		Errors: make([]float64, len(points)),
	}
	for i, p := range points {
		d := f.shift
		if f.jitter != nil {
			d = f.jitter(i)
		}
		res.Points[i] = p.Add(d)
		res.Status[i] = f.lost == nil || !f.lost(i)
	}
	return res, nil
}

func TestFlowGrid(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		step      int
		wantCount int
	}{
		{name: "small frame", w: 200, h: 100, step: 50, wantCount: 3},
		{name: "full hd", w: 1920, h: 1080, step: 50, wantCount: 38 * 21},
		{name: "smaller than one step", w: 40, h: 40, step: 50, wantCount: 0},
		{name: "zero step", w: 100, h: 100, step: 0, wantCount: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, FlowGrid(tt.w, tt.h, tt.step), tt.wantCount)
		})
	}

	assert.Equal(t, []geom.Point{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 100, Y: 0}}, FlowGrid(200, 100, 50))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, median([]float64{5, 1, 3}))
	assert.Equal(t, -10.0, median([]float64{-10, -10, -10, 4}))
	// even counts take the lower middle value
	assert.Equal(t, 2.0, median([]float64{4, 1, 3, 2}))
}

func TestHomographyFromFlow(t *testing.T) {
	cfg := DefaultConfig().Align
	size := image.Pt(1920, 1080)
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	prevH := TranslationHomography(-900, -500)

	tests := []struct {
		name    string
		flow    *fakeFlow
		wantErr bool
		want    geom.Point // world position of pixel (0, 0)
	}{
		{
			name: "uniform motion",
			flow: &fakeFlow{shift: geom.Pt(-10, 0)},
			want: geom.Pt(-890, -500),
		},
		{
			name: "outliers within tolerance",
			flow: &fakeFlow{jitter: func(i int) geom.Point {
				if i%5 == 0 {
					return geom.Pt(30, 30)
				}
				return geom.Pt(-10, 4)
			}},
			want: geom.Pt(-890, -504),
		},
		{
			name: "lost points count against consistency",
			flow: &fakeFlow{
				shift: geom.Pt(-10, 0),
				lost:  func(i int) bool { return i%5 < 2 },
			},
			wantErr: true,
		},
		{
			name: "incoherent motion",
			flow: &fakeFlow{jitter: func(i int) geom.Point {
				return geom.Pt(float64(i%2)*20, 0)
			}},
			wantErr: true,
		},
		{
			name:    "nothing tracked",
			flow:    &fakeFlow{lost: func(int) bool { return true }},
			wantErr: true,
		},
		{
			name:    "tracker error",
			flow:    &fakeFlow{err: fmt.Errorf("boom")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			H, err := HomographyFromFlow(tt.flow, prevH, gray, gray, size, cfg)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrOpticalFlowDegenerate), "got %v", err)
				return
			}
			require.NoError(t, err)
			assertPointNear(t, tt.want, H.Apply(geom.Pt(0, 0)), epsilon)
		})
	}
}

func TestHomographyFromFlow_FrameTooSmall(t *testing.T) {
	flow := &fakeFlow{}
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	_, err := HomographyFromFlow(flow, IdentityHomography(), gray, gray, image.Pt(10, 10), DefaultConfig().Align)
	assert.True(t, errors.Is(err, ErrOpticalFlowDegenerate))
	assert.Equal(t, 0, flow.calls)
}
