package contours

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Overlay renders img in the blue channel, red in the red channel and green
// in the green channel. Either mask may be nil. The image is divided by its
// maximum; images with no positive pixel render black.
func Overlay(img preprocess.Image, red, green *preprocess.Mask) (*image.NRGBA, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	for _, m := range []*preprocess.Mask{red, green} {
		if m == nil {
			continue
		}
		if err := sameShape(img.Height, img.Width, m.Height, m.Width); err != nil {
			return nil, err
		}
	}
	peak := floats.Max(float64s(img.Pix))
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := range img.Height {
		for x := range img.Width {
			i := y*img.Width + x
			c := color.NRGBA{A: 255}
			if red != nil && red.Pix[i] {
				c.R = 255
			}
			if green != nil && green.Pix[i] {
				c.G = 255
			}
			if peak > 0 {
				c.B = uint8(255 * clamp01(float64(img.Pix[i])/peak))
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out, nil
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

// SaveOverlay writes img to path, creating parent directories. The format
// follows the extension.
func SaveOverlay(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", path)
	}
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "failed to save overlay %q", path)
	}
	return nil
}

// OverlayPath names the PNG for an archive after its last two path elements,
// so "out/SCD0000101/48.npz" becomes "<dir>/SCD0000101_48.png".
func OverlayPath(dir, archivePath string) string {
	parts := strings.Split(filepath.ToSlash(archivePath), "/")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	name := strings.Join(parts, "_")
	name = strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
	return filepath.Join(dir, name)
}
