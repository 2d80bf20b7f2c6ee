package datasets

import (
	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func widen[T number](dst []float32, src []T) {
	for i, v := range src {
		dst[i] = float32(v)
	}
}

// matrixDims returns the dimensions of a rank-2 tensor.
func matrixDims(t *tensors.Tensor) (height, width int, err error) {
	dims := t.Shape().Dimensions
	if len(dims) != 2 {
		return 0, 0, errors.Errorf("expected a 2D array, got shape %s", t.Shape())
	}
	if dims[0] <= 0 || dims[1] <= 0 {
		return 0, 0, errors.Errorf("empty 2D array with shape %s", t.Shape())
	}
	return dims[0], dims[1], nil
}

// TensorToImage converts a rank-2 tensor of any integer or float dtype into a
// float32 image. The tensor data is copied.
func TensorToImage(t *tensors.Tensor) (preprocess.Image, error) {
	height, width, err := matrixDims(t)
	if err != nil {
		return preprocess.Image{}, err
	}
	img := preprocess.NewImage(height, width)
	var convErr error
	accessErr := t.ConstFlatData(func(flat any) {
		switch data := flat.(type) {
		case []float32:
			copy(img.Pix, data)
		case []float64:
			widen(img.Pix, data)
		case []int8:
			widen(img.Pix, data)
		case []int16:
			widen(img.Pix, data)
		case []int32:
			widen(img.Pix, data)
		case []int64:
			widen(img.Pix, data)
		case []uint8:
			widen(img.Pix, data)
		case []uint16:
			widen(img.Pix, data)
		case []uint32:
			widen(img.Pix, data)
		case []uint64:
			widen(img.Pix, data)
		default:
			convErr = errors.Errorf("unsupported image dtype %s", t.DType())
		}
	})
	if accessErr != nil {
		return preprocess.Image{}, accessErr
	}
	if convErr != nil {
		return preprocess.Image{}, convErr
	}
	return img, nil
}

// TensorToMask copies a rank-2 boolean tensor into a mask.
func TensorToMask(t *tensors.Tensor) (preprocess.Mask, error) {
	height, width, err := matrixDims(t)
	if err != nil {
		return preprocess.Mask{}, err
	}
	m := preprocess.NewMask(height, width)
	var convErr error
	accessErr := t.ConstFlatData(func(flat any) {
		data, ok := flat.([]bool)
		if !ok {
			convErr = errors.Errorf("mask must be boolean, got dtype %s", t.DType())
			return
		}
		copy(m.Pix, data)
	})
	if accessErr != nil {
		return preprocess.Mask{}, accessErr
	}
	if convErr != nil {
		return preprocess.Mask{}, convErr
	}
	return m, nil
}

// ImageToTensor returns img as a (height, width) float32 tensor.
func ImageToTensor(img preprocess.Image) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(img.Pix, img.Height, img.Width)
}

// MaskToTensor returns m as a (height, width) bool tensor.
func MaskToTensor(m preprocess.Mask) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(m.Pix, m.Height, m.Width)
}
