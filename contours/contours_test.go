package contours

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/cardiacSeg/datasets"
	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maskFrom(rows ...string) preprocess.Mask {
	m := preprocess.NewMask(len(rows), len(rows[0]))
	for y, row := range rows {
		for x, c := range row {
			m.Pix[y*m.Width+x] = c == '#'
		}
	}
	return m
}

// heartSample returns a size x size sample whose outer contour is the whole
// image and whose inner contour is a centered square of bright pixels.
func heartSample(id string, size int) Sample {
	img := preprocess.NewImage(size, size)
	inner := preprocess.NewMask(size, size)
	outer := preprocess.NewMask(size, size)
	for y := range size {
		for x := range size {
			i := y*size + x
			outer.Pix[i] = true
			img.Pix[i] = 0.2
			if x >= size/4 && x < 3*size/4 && y >= size/4 && y < 3*size/4 {
				inner.Pix[i] = true
				img.Pix[i] = 1
			}
		}
	}
	return Sample{ID: id, Image: img, Inner: inner, Outer: outer}
}

func TestJaccard(t *testing.T) {
	a := maskFrom("##..", "##..")
	b := maskFrom(".##.", ".##.")
	iou, err := Jaccard(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/6.0, iou, 1e-12)

	iou, err = Jaccard(a, a)
	require.NoError(t, err)
	assert.Equal(t, 1.0, iou)

	empty := preprocess.NewMask(2, 4)
	iou, err = Jaccard(empty, empty)
	require.NoError(t, err)
	assert.Equal(t, 1.0, iou)

	_, err = Jaccard(a, preprocess.NewMask(4, 2))
	assert.True(t, errors.Is(err, preprocess.ErrShape), "got %v", err)
}

func TestScaleWithin(t *testing.T) {
	img := preprocess.Image{Height: 1, Width: 4, Pix: []float32{100, 2, 4, 6}}
	region := maskFrom(".###")
	out, err := ScaleWithin(img, region)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0.5, 1}, out.Pix)

	out, err = ScaleWithin(img, preprocess.NewMask(1, 4))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, out.Pix)
}

func TestThreshold(t *testing.T) {
	img := preprocess.Image{Height: 1, Width: 4, Pix: []float32{0.9, 0.1, 0.6, 0.9}}
	pred, err := Threshold(img, maskFrom("###."), 0.5)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false}, pred.Pix)
}

func TestRemoveSmallComponents(t *testing.T) {
	m := maskFrom(
		"#...##",
		".#..##",
		"......",
		"###...",
	)
	out := RemoveSmallComponents(m, 3)
	assert.Equal(t, maskFrom(
		"....##",
		"....##",
		"......",
		"###...",
	), out)
	// The input is untouched.
	assert.True(t, m.At(0, 0))

	// Diagonal neighbours are separate components.
	assert.Equal(t, 9, RemoveSmallComponents(m, 1).Count())
	assert.Equal(t, 7, RemoveSmallComponents(m, 2).Count())
}

func TestConvexHull(t *testing.T) {
	hull := ConvexHull([]Point{{0, 0}, {2, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 0}})
	assert.ElementsMatch(t, []Point{{0, 0}, {2, 0}, {2, 2}, {0, 2}}, hull)
}

func TestFillPolygon(t *testing.T) {
	m := FillPolygon([]Point{{1, 1}, {3, 1}, {3, 3}, {1, 3}}, 4, 4)
	assert.Equal(t, maskFrom(
		"....",
		".##.",
		".##.",
		"....",
	), m)
	assert.Equal(t, 0, FillPolygon([]Point{{0, 0}, {1, 1}}, 4, 4).Count())
}

func TestConvexHullMask(t *testing.T) {
	ring := maskFrom(
		"#####",
		"#...#",
		"#...#",
		"#...#",
		"#####",
	)
	assert.Equal(t, 25, ConvexHullMask(ring).Count())

	corner := maskFrom(
		"#..",
		"#..",
		"###",
	)
	hull := ConvexHullMask(corner)
	for i, fg := range corner.Pix {
		if fg {
			assert.True(t, hull.Pix[i], "foreground pixel %d kept", i)
		}
	}
	assert.True(t, hull.At(1, 1), "pixel inside the hull")
	assert.False(t, hull.At(0, 2), "pixel outside the hull")

	assert.Equal(t, 0, ConvexHullMask(preprocess.NewMask(3, 3)).Count())
}

func TestThresholds(t *testing.T) {
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, Thresholds(0, 1, 5))
	assert.Equal(t, []float64{3}, Thresholds(3, 7, 1))
	assert.Nil(t, Thresholds(0, 1, 0))
}

func TestSweep(t *testing.T) {
	samples := []Sample{heartSample("a", 8), heartSample("b", 12)}
	var calls int
	scores, err := Sweep(context.Background(), samples, []float64{0.1, 0.5, 1}, Options{
		Workers:  2,
		Progress: func(Score) { calls++ },
	})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, 3, calls)

	// Everything is predicted: IoU is the inner area fraction, 1/4.
	assert.Equal(t, 0.1, scores[0].Threshold)
	assert.InDelta(t, 0.25, scores[0].MeanIoU, 1e-9)
	assert.InDelta(t, 1, scores[1].MeanIoU, 1e-9)
	// Nothing is predicted.
	assert.InDelta(t, 0, scores[2].MeanIoU, 1e-9)

	best, ok := Best(scores)
	require.True(t, ok)
	assert.Equal(t, 0.5, best.Threshold)

	// Scaled within the outer contour, the ring maps to 0 and the inner square to 1.
	scores, err = Sweep(context.Background(), samples, []float64{0, 0.99}, Options{ScaleImage: true, Hull: true, MinComponent: 2})
	require.NoError(t, err)
	assert.InDelta(t, 1, scores[0].MeanIoU, 1e-9)
	assert.InDelta(t, 1, scores[1].MeanIoU, 1e-9)
}

func TestSweep_Errors(t *testing.T) {
	_, err := Sweep(context.Background(), nil, []float64{0.5}, Options{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Sweep(ctx, []Sample{heartSample("a", 8)}, []float64{0.5}, Options{})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestWriteScores(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteScores(&buf, []Score{{0, 0.25}, {0.5, 1}}))
	assert.Equal(t, "0\t0.25\n0.5\t1\n", buf.String())
}

func TestIntensityStatistics(t *testing.T) {
	samples := []Sample{heartSample("a", 8), heartSample("b", 8)}
	samples[1].Image.Pix[0] = 3
	peak, err := MaxIntensity(samples)
	require.NoError(t, err)
	assert.Equal(t, 3.0, peak)

	gap, err := MeanIntensityGap(samples[:1], false)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, gap, 1e-6)

	gap, err = MeanIntensityGap(samples[:1], true)
	require.NoError(t, err)
	assert.InDelta(t, 1, gap, 1e-6)

	_, err = MaxIntensity(nil)
	assert.Error(t, err)
	noRing := heartSample("c", 8)
	noRing.Outer = noRing.Inner
	_, err = MeanIntensityGap([]Sample{noRing}, false)
	assert.Error(t, err)
}

// fakeFeeder mimics a non-truncating EpochIterator over n heart samples.
type fakeFeeder struct {
	n, batchSize int
	dual         bool
	position     int
	epoch        int
}

func (f *fakeFeeder) Len() int   { return f.n }
func (f *fakeFeeder) Epoch() int { return f.epoch }

func (f *fakeFeeder) Next() (datasets.Batch, error) {
	var ids []string
	var samples []preprocess.Sample
	for range f.batchSize {
		s := heartSample(fmt.Sprintf("s%d", f.position), 4)
		ids = append(ids, s.ID)
		ps := preprocess.Sample{Image: s.Image, Masks: []preprocess.Mask{s.Inner}}
		if f.dual {
			ps.Masks = append(ps.Masks, s.Outer)
		}
		samples = append(samples, ps)
		f.position++
		if f.position == f.n {
			f.position = 0
			f.epoch++
		}
	}
	return datasets.Assemble(4, f.dual, ids, samples)
}

func TestCollectEpoch(t *testing.T) {
	f := &fakeFeeder{n: 5, batchSize: 2, dual: true, epoch: 1}
	samples, err := CollectEpoch(f)
	require.NoError(t, err)
	require.Len(t, samples, 5)
	for i, s := range samples {
		assert.Equal(t, fmt.Sprintf("s%d", i), s.ID)
		assert.Equal(t, 4, s.Inner.Count())
		assert.Equal(t, 16, s.Outer.Count())
	}
	assert.Equal(t, 2, f.Epoch())

	_, err = CollectEpoch(&fakeFeeder{n: 2, batchSize: 1, epoch: 1})
	assert.Error(t, err, "single mask batches are rejected")
}

func TestOverlay(t *testing.T) {
	s := heartSample("a", 4)
	img, err := Overlay(s.Image, &s.Inner, &s.Outer)
	require.NoError(t, err)
	c := img.NRGBAAt(1, 1)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(255), c.G)
	assert.Equal(t, uint8(255), c.B)
	c = img.NRGBAAt(0, 0)
	assert.Equal(t, uint8(0), c.R)
	assert.Equal(t, uint8(255), c.G)
	assert.Equal(t, uint8(51), c.B)

	img, err = Overlay(s.Image, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), img.NRGBAAt(1, 1).R)

	_, err = Overlay(s.Image, &preprocess.Mask{Height: 2, Width: 2, Pix: make([]bool, 4)}, nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "overlays", "a.png")
	require.NoError(t, SaveOverlay(path, img))
	back, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 4, back.Bounds().Dx())
}

func TestOverlayPath(t *testing.T) {
	assert.Equal(t, filepath.Join("ov", "SCD0000101_48.png"), OverlayPath("ov", "training/SCD0000101/48.npz"))
	assert.Equal(t, filepath.Join("ov", "48.png"), OverlayPath("ov", "48.npz"))
}

func TestPlotSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "sweep.png")
	require.NoError(t, PlotSweep(path, "threshold sweep", []Score{{0, 0.2}, {0.5, 0.9}, {1, 0}}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, PlotSweep(path, "empty", nil))
}
