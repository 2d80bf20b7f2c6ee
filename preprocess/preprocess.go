package preprocess

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mode selects how source values are interpreted when resizing.
type Mode int

const (
	// ModeFloat resamples general numeric values.
	ModeFloat Mode = iota
	// ModeBinary treats any non-zero value as foreground and only ever
	// produces 0 or 1.
	ModeBinary
)

func (m Mode) String() string {
	switch m {
	case ModeFloat:
		return "float"
	case ModeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// RescaleIntensity divides every pixel by maxIntensity, or by the image's own
// maximum when maxIntensity <= 0. Afterwards the maximum of an image rescaled
// by its own maximum is exactly 1.
func RescaleIntensity(img Image, maxIntensity float64) (Image, error) {
	if err := img.Validate(); err != nil {
		return Image{}, err
	}
	divisor := maxIntensity
	if divisor <= 0 {
		divisor = floats.Max(img.float64s())
		if divisor == 0 {
			return Image{}, errors.Wrapf(ErrZeroIntensity, "cannot rescale %dx%d image", img.Height, img.Width)
		}
	}
	out := img.Clone()
	for i, v := range out.Pix {
		out.Pix[i] = float32(float64(v) / divisor)
	}
	return out, nil
}

// sourceIndex maps a destination index to the source index whose pixel
// centre is nearest, the same rule imaging.NearestNeighbor applies.
func sourceIndex(dst, srcLen, dstLen int) int {
	scale := float64(srcLen) / float64(dstLen)
	idx := int((float64(dst) + 0.5) * scale)
	if idx >= srcLen {
		idx = srcLen - 1
	}
	return idx
}

// Resize resamples img to exactly height x width without interpolation.
func Resize(img Image, height, width int, mode Mode) (Image, error) {
	if err := img.Validate(); err != nil {
		return Image{}, err
	}
	if height <= 0 || width <= 0 {
		return Image{}, errors.Wrapf(ErrShape, "cannot resize to %dx%d", height, width)
	}
	switch mode {
	case ModeFloat:
		return resizeNearest(img, height, width), nil
	case ModeBinary:
		fg := make([]bool, len(img.Pix))
		for i, v := range img.Pix {
			fg[i] = v != 0
		}
		m := resizeBinary(Mask{Height: img.Height, Width: img.Width, Pix: fg}, height, width)
		out := NewImage(height, width)
		for i, v := range m.Pix {
			if v {
				out.Pix[i] = 1
			}
		}
		return out, nil
	default:
		return Image{}, errors.Errorf("unknown resize mode %d", mode)
	}
}

func resizeNearest(img Image, height, width int) Image {
	out := NewImage(height, width)
	cols := make([]int, width)
	for x := range cols {
		cols[x] = sourceIndex(x, img.Width, width)
	}
	for y := 0; y < height; y++ {
		row := sourceIndex(y, img.Height, height) * img.Width
		for x, sx := range cols {
			out.Pix[y*width+x] = img.Pix[row+sx]
		}
	}
	return out
}

// resizeBinary goes through imaging so masks get the library's nearest
// neighbour sampling; thresholding the 8-bit result keeps it strictly binary.
func resizeBinary(m Mask, height, width int) Mask {
	src := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v {
			src.Pix[(i/m.Width)*src.Stride+i%m.Width] = 255
		}
	}
	dst := imaging.Resize(src, width, height, imaging.NearestNeighbor)
	out := NewMask(height, width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.GrayModel.Convert(dst.At(x, y)).(color.Gray)
			out.Pix[y*width+x] = c.Y >= 128
		}
	}
	return out
}

// ResizeMask resamples a mask to height x width, preserving a clean boolean field.
func ResizeMask(m Mask, height, width int) (Mask, error) {
	if err := m.Validate(); err != nil {
		return Mask{}, err
	}
	if height <= 0 || width <= 0 {
		return Mask{}, errors.Wrapf(ErrShape, "cannot resize mask to %dx%d", height, width)
	}
	return resizeBinary(m, height, width), nil
}

// MeanCenter subtracts the image's own arithmetic mean.
func MeanCenter(img Image) (Image, error) {
	if err := img.Validate(); err != nil {
		return Image{}, err
	}
	return MeanCenterBy(img, stat.Mean(img.float64s(), nil))
}

// MeanCenterBy subtracts a global scalar mean (e.g. a dataset mean).
func MeanCenterBy(img Image, mean float64) (Image, error) {
	if err := img.Validate(); err != nil {
		return Image{}, err
	}
	out := img.Clone()
	for i, v := range out.Pix {
		out.Pix[i] = float32(float64(v) - mean)
	}
	return out, nil
}

// MeanCenterByPixel subtracts a per-pixel mean image of the same shape.
func MeanCenterByPixel(img, mean Image) (Image, error) {
	if err := img.Validate(); err != nil {
		return Image{}, err
	}
	if mean.Height != img.Height || mean.Width != img.Width || len(mean.Pix) != len(img.Pix) {
		return Image{}, errors.Wrapf(ErrShape, "mean image %dx%d does not match image %dx%d",
			mean.Height, mean.Width, img.Height, img.Width)
	}
	out := img.Clone()
	for i := range out.Pix {
		out.Pix[i] -= mean.Pix[i]
	}
	return out, nil
}

// ProcessImage rescales intensities, resizes to size x size and mean-centers.
// For non-negative inputs the result lies within [-1, 1].
func ProcessImage(img Image, size int, maxIntensity float64) (Image, error) {
	out, err := RescaleIntensity(img, maxIntensity)
	if err != nil {
		return Image{}, err
	}
	out, err = Resize(out, size, size, ModeFloat)
	if err != nil {
		return Image{}, err
	}
	return MeanCenter(out)
}

// ProcessMask resizes a mask to size x size.
func ProcessMask(m Mask, size int) (Mask, error) {
	return ResizeMask(m, size, size)
}
