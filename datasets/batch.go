package datasets

import (
	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// ImageStack holds Count images of Size x Size with one channel, contiguous
// in (count, size, size, 1) order.
type ImageStack struct {
	Count int
	Size  int
	Data  []float32
}

// Shape returns (count, size, size, 1).
func (s ImageStack) Shape() []int {
	return []int{s.Count, s.Size, s.Size, 1}
}

// Example returns the i-th image as a Size x Size view into Data.
func (s ImageStack) Example(i int) preprocess.Image {
	n := s.Size * s.Size
	return preprocess.Image{Height: s.Size, Width: s.Size, Pix: s.Data[i*n : (i+1)*n]}
}

// ToTensor converts the stack to a float32 gomlx tensor. gomlx has no
// zero-sized axes, so an empty stack returns nil.
func (s ImageStack) ToTensor() *tensors.Tensor {
	if s.Count == 0 {
		return nil
	}
	return tensors.FromFlatDataAndDimensions(s.Data, s.Shape()...)
}

// MaskStack holds Count boolean masks in (count, size, size, 1) order.
type MaskStack struct {
	Count int
	Size  int
	Data  []bool
}

// Shape returns (count, size, size, 1).
func (s MaskStack) Shape() []int {
	return []int{s.Count, s.Size, s.Size, 1}
}

// Example returns the i-th mask as a Size x Size view into Data.
func (s MaskStack) Example(i int) preprocess.Mask {
	n := s.Size * s.Size
	return preprocess.Mask{Height: s.Size, Width: s.Size, Pix: s.Data[i*n : (i+1)*n]}
}

// ToTensor converts the stack to a bool gomlx tensor, nil if empty.
func (s MaskStack) ToTensor() *tensors.Tensor {
	if s.Count == 0 {
		return nil
	}
	return tensors.FromFlatDataAndDimensions(s.Data, s.Shape()...)
}

// Batch is either a SingleMaskBatch or a DualMaskBatch, depending on whether
// the iterator was configured with Config.DualMask.
type Batch interface {
	// Len is the number of samples in the batch.
	Len() int

	// SampleIDs are the archive locations of the samples, in batch order.
	SampleIDs() []string

	// Tensors returns the images as the single input and the masks as labels.
	Tensors() (inputs, labels []*tensors.Tensor)

	isBatch()
}

// SingleMaskBatch pairs images with their inner contour masks.
type SingleMaskBatch struct {
	IDs    []string
	Images ImageStack
	Masks  MaskStack
}

func (b *SingleMaskBatch) Len() int            { return b.Images.Count }
func (b *SingleMaskBatch) SampleIDs() []string { return b.IDs }
func (b *SingleMaskBatch) isBatch()            {}

func (b *SingleMaskBatch) Tensors() (inputs, labels []*tensors.Tensor) {
	return []*tensors.Tensor{b.Images.ToTensor()}, []*tensors.Tensor{b.Masks.ToTensor()}
}

// DualMaskBatch pairs images with both inner and outer contour masks.
type DualMaskBatch struct {
	IDs    []string
	Images ImageStack
	Inner  MaskStack
	Outer  MaskStack
}

func (b *DualMaskBatch) Len() int            { return b.Images.Count }
func (b *DualMaskBatch) SampleIDs() []string { return b.IDs }
func (b *DualMaskBatch) isBatch()            {}

func (b *DualMaskBatch) Tensors() (inputs, labels []*tensors.Tensor) {
	return []*tensors.Tensor{b.Images.ToTensor()},
		[]*tensors.Tensor{b.Inner.ToTensor(), b.Outer.ToTensor()}
}

// Assemble stacks per-sample outputs along a new leading batch axis. Every
// sample must be size x size and carry one mask, or two when dual is set.
func Assemble(size int, dual bool, ids []string, samples []preprocess.Sample) (Batch, error) {
	if len(ids) != len(samples) {
		return nil, errors.Errorf("got %d ids for %d samples", len(ids), len(samples))
	}
	numMasks := 1
	if dual {
		numMasks = 2
	}
	count := len(samples)
	n := size * size
	images := ImageStack{Count: count, Size: size, Data: make([]float32, count*n)}
	masks := make([]MaskStack, numMasks)
	for j := range masks {
		masks[j] = MaskStack{Count: count, Size: size, Data: make([]bool, count*n)}
	}

	for i, s := range samples {
		if s.Image.Height != size || s.Image.Width != size || len(s.Image.Pix) != n {
			return nil, errors.Errorf("sample %q: image is %dx%d, batch needs %dx%d",
				ids[i], s.Image.Height, s.Image.Width, size, size)
		}
		if len(s.Masks) != numMasks {
			return nil, errors.Errorf("sample %q: has %d masks, batch needs %d", ids[i], len(s.Masks), numMasks)
		}
		copy(images.Data[i*n:], s.Image.Pix)
		for j, m := range s.Masks {
			if m.Height != size || m.Width != size || len(m.Pix) != n {
				return nil, errors.Errorf("sample %q: mask %d is %dx%d, batch needs %dx%d",
					ids[i], j, m.Height, m.Width, size, size)
			}
			copy(masks[j].Data[i*n:], m.Pix)
		}
	}

	idsCopy := append([]string(nil), ids...)
	if dual {
		return &DualMaskBatch{IDs: idsCopy, Images: images, Inner: masks[0], Outer: masks[1]}, nil
	}
	return &SingleMaskBatch{IDs: idsCopy, Images: images, Masks: masks[0]}, nil
}
