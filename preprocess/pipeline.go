package preprocess

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Pipeline runs ProcessImage and ProcessMask for one sample at a time.
//
// Failures never escape Run: they are logged with the sample identifier and
// reported as "no result" (ok == false). Callers decide what a missing sample
// means for their batch.
type Pipeline struct {
	// Size is the side of the square output.
	Size int

	// MaxIntensity, if > 0, is used instead of each image's own maximum.
	MaxIntensity float64
}

// Run processes an image and its masks. The returned error, if any, is the
// cause that was logged; it is only meaningful when ok is false.
func (p Pipeline) Run(id string, img Image, masks ...Mask) (sample Sample, ok bool, cause error) {
	defer func() {
		if r := recover(); r != nil {
			cause = errors.Errorf("panic while processing: %v", r)
			klog.Errorf("Error processing sample %q: %+v", id, cause)
			sample, ok = Sample{}, false
		}
	}()

	processed, err := ProcessImage(img, p.Size, p.MaxIntensity)
	if err != nil {
		klog.Errorf("Error processing image of sample %q: %v", id, err)
		return Sample{}, false, errors.WithMessage(err, "image")
	}
	sample.Image = processed
	sample.Masks = make([]Mask, len(masks))
	for i, m := range masks {
		sample.Masks[i], err = ProcessMask(m, p.Size)
		if err != nil {
			klog.Errorf("Error processing contour mask %d of sample %q: %v", i, id, err)
			return Sample{}, false, errors.WithMessage(err, fmt.Sprintf("mask %d", i))
		}
	}
	return sample, true, nil
}
