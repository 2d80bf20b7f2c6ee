// Package preprocess turns raw cross-section images and contour masks of
// arbitrary size and intensity scale into fixed-size, normalized samples that
// can be fed to a segmentation model.
//
// All functions are pure: they never modify their inputs and share no state,
// so samples can be processed independently.
package preprocess

import (
	"github.com/pkg/errors"
)

var (
	// ErrZeroIntensity is returned when an image has to be rescaled by its own
	// maximum and that maximum is zero.
	ErrZeroIntensity = errors.New("image maximum intensity is zero")

	// ErrShape is returned when a buffer does not match its declared
	// dimensions, or when requested dimensions are not positive.
	ErrShape = errors.New("invalid shape")
)

// Image is a single channel 2D image stored row-major.
type Image struct {
	Height, Width int
	Pix           []float32
}

// NewImage allocates a zeroed image.
func NewImage(height, width int) Image {
	return Image{Height: height, Width: width, Pix: make([]float32, height*width)}
}

// At returns the value at row y, column x.
func (img Image) At(y, x int) float32 {
	return img.Pix[y*img.Width+x]
}

// Validate checks that Pix holds exactly Height*Width values.
func (img Image) Validate() error {
	if img.Height <= 0 || img.Width <= 0 {
		return errors.Wrapf(ErrShape, "image dimensions %dx%d", img.Height, img.Width)
	}
	if len(img.Pix) != img.Height*img.Width {
		return errors.Wrapf(ErrShape, "image %dx%d holds %d values", img.Height, img.Width, len(img.Pix))
	}
	return nil
}

// Clone returns a deep copy.
func (img Image) Clone() Image {
	pix := make([]float32, len(img.Pix))
	copy(pix, img.Pix)
	return Image{Height: img.Height, Width: img.Width, Pix: pix}
}

// float64s returns the pixels widened to float64, the element type gonum works on.
func (img Image) float64s() []float64 {
	out := make([]float64, len(img.Pix))
	for i, v := range img.Pix {
		out[i] = float64(v)
	}
	return out
}

// Mask is a boolean 2D field stored row-major.
type Mask struct {
	Height, Width int
	Pix           []bool
}

// NewMask allocates an all-false mask.
func NewMask(height, width int) Mask {
	return Mask{Height: height, Width: width, Pix: make([]bool, height*width)}
}

// At returns the value at row y, column x.
func (m Mask) At(y, x int) bool {
	return m.Pix[y*m.Width+x]
}

// Validate checks that Pix holds exactly Height*Width values.
func (m Mask) Validate() error {
	if m.Height <= 0 || m.Width <= 0 {
		return errors.Wrapf(ErrShape, "mask dimensions %dx%d", m.Height, m.Width)
	}
	if len(m.Pix) != m.Height*m.Width {
		return errors.Wrapf(ErrShape, "mask %dx%d holds %d values", m.Height, m.Width, len(m.Pix))
	}
	return nil
}

// Count returns the number of true pixels.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Sample is the processed output for one archive: an image and one or two
// masks, all of the same spatial size.
type Sample struct {
	Image Image
	Masks []Mask
}
