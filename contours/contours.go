// Package contours scores simple intensity-threshold segmentations of the
// inner contour against the ground truth, using the outer contour as the
// region of interest.
//
// The analysis works on one epoch of a dual mask EpochIterator snapshotted in
// memory with CollectEpoch. Threshold sweeps then evaluate many thresholds
// over that snapshot in parallel.
package contours

import (
	"github.com/Noofbiz/cardiacSeg/datasets"
	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

// Feeder is the part of datasets.EpochIterator the analysis needs. Using an
// interface here lets tests feed batches from memory.
type Feeder interface {
	// Len is the number of samples in an epoch.
	Len() int

	// Epoch is the current epoch number.
	Epoch() int

	// Next returns the next batch. It must be a *datasets.DualMaskBatch.
	Next() (datasets.Batch, error)
}

// Sample is one image with its two contour masks.
type Sample struct {
	ID    string
	Image preprocess.Image
	Inner preprocess.Mask
	Outer preprocess.Mask
}

// CollectEpoch reads batches until the feeder moves to its next epoch and
// returns the samples of the epoch it started in. Batches that wrap around
// into the next epoch are cut at Len samples.
func CollectEpoch(f Feeder) ([]Sample, error) {
	start := f.Epoch()
	samples := make([]Sample, 0, f.Len())
	for f.Epoch() == start {
		batch, err := f.Next()
		if err != nil {
			return nil, errors.WithMessagef(err, "collecting epoch %d", start)
		}
		dual, ok := batch.(*datasets.DualMaskBatch)
		if !ok {
			return nil, errors.Errorf("contour analysis needs dual mask batches, got %T", batch)
		}
		for i := range dual.Len() {
			samples = append(samples, Sample{
				ID:    dual.IDs[i],
				Image: dual.Images.Example(i),
				Inner: dual.Inner.Example(i),
				Outer: dual.Outer.Example(i),
			})
		}
	}
	if len(samples) > f.Len() {
		samples = samples[:f.Len()]
	}
	klog.V(1).Infof("collected %d samples from epoch %d", len(samples), start)
	return samples, nil
}

func float64s(pix []float32) []float64 {
	out := make([]float64, len(pix))
	for i, v := range pix {
		out[i] = float64(v)
	}
	return out
}

// MaxIntensity returns the largest pixel value over all samples.
func MaxIntensity(samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, errors.New("no samples")
	}
	maxes := make([]float64, len(samples))
	for i, s := range samples {
		if len(s.Image.Pix) == 0 {
			return 0, errors.Errorf("sample %q has an empty image", s.ID)
		}
		maxes[i] = floats.Max(float64s(s.Image.Pix))
	}
	return floats.Max(maxes), nil
}

// MeanIntensityGap averages, over all samples, the mean intensity inside the
// inner contour minus the mean intensity of the ring between the outer and
// inner contours. With scale set, images are first scaled within their outer
// contour. Samples with an empty inner region or ring are left out.
func MeanIntensityGap(samples []Sample, scale bool) (float64, error) {
	var gaps []float64
	for _, s := range samples {
		img := s.Image
		if scale {
			var err error
			if img, err = ScaleWithin(img, s.Outer); err != nil {
				return 0, errors.WithMessagef(err, "sample %q", s.ID)
			}
		}
		if err := sameShape(img.Height, img.Width, s.Inner.Height, s.Inner.Width); err != nil {
			return 0, errors.WithMessagef(err, "sample %q", s.ID)
		}
		var inner, ring []float64
		for i, v := range img.Pix {
			switch {
			case s.Inner.Pix[i]:
				inner = append(inner, float64(v))
			case s.Outer.Pix[i]:
				ring = append(ring, float64(v))
			}
		}
		if len(inner) == 0 || len(ring) == 0 {
			klog.V(1).Infof("sample %q: empty inner region or ring, left out of the intensity gap", s.ID)
			continue
		}
		gaps = append(gaps, stat.Mean(inner, nil)-stat.Mean(ring, nil))
	}
	if len(gaps) == 0 {
		return 0, errors.New("no sample has both an inner region and a ring")
	}
	return stat.Mean(gaps, nil), nil
}
