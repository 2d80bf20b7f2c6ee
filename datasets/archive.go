package datasets

import (
	"sort"

	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/numpy"
	"github.com/pkg/errors"
)

// Field names of a sample archive. Archive producers and the iterator agree
// on exactly these keys.
const (
	KeyImage        = "image"
	KeyInnerContour = "i_contour"
	KeyOuterContour = "o_contour"

	// legacyKeyTarget is an older name for the inner contour. Archives using
	// it are rejected with a message pointing at KeyInnerContour.
	legacyKeyTarget = "target"
)

// Record is the content of one sample archive: an image with its inner
// contour mask and, in dual mask mode, its outer contour mask.
type Record struct {
	Image preprocess.Image
	Inner preprocess.Mask
	Outer *preprocess.Mask
}

// Masks returns the masks present in the record, inner first.
func (r *Record) Masks() []preprocess.Mask {
	if r.Outer == nil {
		return []preprocess.Mask{r.Inner}
	}
	return []preprocess.Mask{r.Inner, *r.Outer}
}

// ArchiveReader reads the named arrays of an archive. numpy.FromNpzFile is
// the default.
type ArchiveReader func(path string) (map[string]*tensors.Tensor, error)

// LoadRecord reads and validates the .npz archive at path. With dual set,
// the outer contour is required as well. Validation failures match
// ErrArchiveMalformed.
func LoadRecord(path string, dual bool) (*Record, error) {
	return loadRecord(numpy.FromNpzFile, path, dual)
}

func loadRecord(read ArchiveReader, path string, dual bool) (*Record, error) {
	arrays, err := read(path)
	if err != nil {
		return nil, errors.Wrapf(ErrArchiveMalformed, "failed to read archive %q: %v", path, err)
	}
	rec, err := recordFromArrays(arrays, dual)
	if err != nil {
		return nil, errors.Wrapf(ErrArchiveMalformed, "archive %q: %v", path, err)
	}
	return rec, nil
}

func recordFromArrays(arrays map[string]*tensors.Tensor, dual bool) (*Record, error) {
	imgT, ok := arrays[KeyImage]
	if !ok {
		return nil, errors.Errorf("missing key %q (has %v)", KeyImage, keys(arrays))
	}
	img, err := TensorToImage(imgT)
	if err != nil {
		return nil, errors.WithMessagef(err, "key %q", KeyImage)
	}

	rec := &Record{Image: img}
	innerT, ok := arrays[KeyInnerContour]
	if !ok {
		if _, legacy := arrays[legacyKeyTarget]; legacy {
			return nil, errors.Errorf("missing key %q: archive uses the unsupported key %q", KeyInnerContour, legacyKeyTarget)
		}
		return nil, errors.Errorf("missing key %q (has %v)", KeyInnerContour, keys(arrays))
	}
	if rec.Inner, err = loadMask(innerT, img, KeyInnerContour); err != nil {
		return nil, err
	}

	if dual {
		outerT, ok := arrays[KeyOuterContour]
		if !ok {
			return nil, errors.Errorf("missing key %q required in dual mask mode (has %v)", KeyOuterContour, keys(arrays))
		}
		outer, err := loadMask(outerT, img, KeyOuterContour)
		if err != nil {
			return nil, err
		}
		rec.Outer = &outer
	}
	return rec, nil
}

func loadMask(t *tensors.Tensor, img preprocess.Image, key string) (preprocess.Mask, error) {
	m, err := TensorToMask(t)
	if err != nil {
		return preprocess.Mask{}, errors.WithMessagef(err, "key %q", key)
	}
	if m.Height != img.Height || m.Width != img.Width {
		return preprocess.Mask{}, errors.Errorf("key %q has shape %dx%d, image is %dx%d",
			key, m.Height, m.Width, img.Height, img.Width)
	}
	return m, nil
}

func keys(arrays map[string]*tensors.Tensor) []string {
	out := make([]string, 0, len(arrays))
	for k := range arrays {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SaveRecord writes rec as a .npz archive, the format LoadRecord reads.
func SaveRecord(path string, rec *Record) error {
	arrays := map[string]*tensors.Tensor{
		KeyImage:        ImageToTensor(rec.Image),
		KeyInnerContour: MaskToTensor(rec.Inner),
	}
	if rec.Outer != nil {
		arrays[KeyOuterContour] = MaskToTensor(*rec.Outer)
	}
	return SaveArrays(path, arrays)
}

// SaveArrays writes arbitrary named arrays as a .npz archive. Archives built
// this way need not satisfy the record schema.
func SaveArrays(path string, arrays map[string]*tensors.Tensor) error {
	if err := numpy.ToNpzFile(arrays, path); err != nil {
		return errors.WithMessagef(err, "failed to save archive %q", path)
	}
	return nil
}
