package builder

import (
	"github.com/Noofbiz/cardiacSeg/datasets"
	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/gomlx/gomlx/pkg/core/tensors/numpy"
	"github.com/pkg/errors"
)

// PixelSource decodes the pixel data of one image file. DICOM decoding lives
// behind this interface so the builder does not depend on a particular
// decoder.
type PixelSource interface {
	Pixels(path string) (preprocess.Image, error)
}

// PixelSourceFunc adapts a function to PixelSource.
type PixelSourceFunc func(path string) (preprocess.Image, error)

func (f PixelSourceFunc) Pixels(path string) (preprocess.Image, error) { return f(path) }

// NpyPixelSource reads images already exported as 2D .npy arrays of any
// integer or float dtype.
type NpyPixelSource struct{}

func (NpyPixelSource) Pixels(path string) (preprocess.Image, error) {
	t, err := numpy.FromNpyFile(path)
	if err != nil {
		return preprocess.Image{}, errors.WithMessagef(err, "failed to read pixels from %q", path)
	}
	img, err := datasets.TensorToImage(t)
	if err != nil {
		return preprocess.Image{}, errors.WithMessagef(err, "pixels of %q", path)
	}
	return img, nil
}
