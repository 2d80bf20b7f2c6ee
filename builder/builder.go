// Package builder assembles the sample archives read by the datasets package
// from raw image files and hand-drawn contour files.
//
// A link table pairs each patient's image directory with the directory
// holding its contours:
//
//	<ImageDir>/<patient_id>/<id>.<ext>
//	<ContourDir>/<original_id>/i-contours/IM-0001-<id>-icontour-manual.txt
//	<ContourDir>/<original_id>/o-contours/IM-0001-<id>-ocontour-manual.txt
//
// Every image with at least one usable contour becomes
// <OutputDir>/<patient_id>/<id>.npz, and is listed in the manifests
// i_contour.txt, o_contour.txt and both_contour.txt according to the contours
// it holds.
package builder

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/Noofbiz/cardiacSeg/datasets"
	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Manifest file names written under the output directory.
const (
	InnerManifest = "i_contour.txt"
	OuterManifest = "o_contour.txt"
	BothManifest  = "both_contour.txt"
)

// Builder holds the locations of the raw data. Zero values of the optional
// fields select the defaults noted on each.
type Builder struct {
	LinkFile   string
	ImageDir   string
	ContourDir string
	OutputDir  string

	// ImageExts are the image file extensions scanned. Defaults to ".dcm".
	ImageExts []string

	// Source decodes image files. Required.
	Source PixelSource

	// OnPatient, if set, is called after each link table row is handled.
	OnPatient func(link Link)
}

// Summary counts what Build did.
type Summary struct {
	Patients        int
	SkippedPatients int
	Archives        int
	Inner           int
	Outer           int
	Both            int
	FailedImages    int
	FailedContours  int
}

// Build writes the archives and manifests. Problems with single patients,
// images or contours are logged and counted; only failures to read the link
// table or to write output are returned.
func (b *Builder) Build() (Summary, error) {
	var sum Summary
	if b.Source == nil {
		return sum, errors.New("builder needs a PixelSource")
	}
	links, err := ReadLinks(b.LinkFile)
	if err != nil {
		return sum, err
	}
	if err := os.MkdirAll(b.OutputDir, 0755); err != nil {
		return sum, errors.Wrapf(err, "failed to create output directory %q", b.OutputDir)
	}
	exts := b.ImageExts
	if len(exts) == 0 {
		exts = []string{".dcm"}
	}

	var inner, outer, both []string
	for _, link := range links {
		sum.Patients++
		written, err := b.buildPatient(link, exts, &sum)
		if err != nil {
			return sum, err
		}
		for _, a := range written {
			if a.inner {
				inner = append(inner, a.path)
			}
			if a.outer {
				outer = append(outer, a.path)
			}
			if a.inner && a.outer {
				both = append(both, a.path)
			}
		}
		if b.OnPatient != nil {
			b.OnPatient(link)
		}
	}

	for name, list := range map[string][]string{InnerManifest: inner, OuterManifest: outer, BothManifest: both} {
		if err := datasets.WriteManifest(filepath.Join(b.OutputDir, name), list); err != nil {
			return sum, err
		}
	}
	sum.Inner, sum.Outer, sum.Both = len(inner), len(outer), len(both)
	klog.Infof("built %d archives for %d patients (%d skipped): %d inner, %d outer, %d both",
		sum.Archives, sum.Patients, sum.SkippedPatients, sum.Inner, sum.Outer, sum.Both)
	return sum, nil
}

type written struct {
	path         string
	inner, outer bool
}

func (b *Builder) buildPatient(link Link, exts []string, sum *Summary) ([]written, error) {
	imageDir := filepath.Join(b.ImageDir, link.PatientID)
	if info, err := os.Stat(imageDir); err != nil || !info.IsDir() {
		klog.Errorf("%s directory does not exist, skipping patient %s", imageDir, link.PatientID)
		sum.SkippedPatients++
		return nil, nil
	}
	images, err := ScanIDs(imageDir, exts, DicomID)
	if err != nil {
		return nil, err
	}
	contourDir := filepath.Join(b.ContourDir, link.OriginalID)
	innerFiles, err := ScanIDs(filepath.Join(contourDir, "i-contours"), []string{".txt"}, ContourID)
	if err != nil {
		return nil, err
	}
	outerFiles, err := ScanIDs(filepath.Join(contourDir, "o-contours"), []string{".txt"}, ContourID)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(images))
	for id := range images {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []written
	for _, id := range ids {
		innerPath, hasInner := innerFiles[id]
		outerPath, hasOuter := outerFiles[id]
		if !hasInner && !hasOuter {
			continue
		}
		img, err := b.Source.Pixels(images[id])
		if err != nil {
			klog.Errorf("failed to decode %s: %v", images[id], err)
			sum.FailedImages++
			continue
		}
		arrays := map[string]*tensors.Tensor{datasets.KeyImage: datasets.ImageToTensor(img)}
		w := written{}
		if hasInner {
			w.inner = addContour(arrays, datasets.KeyInnerContour, innerPath, img, sum)
		}
		if hasOuter {
			w.outer = addContour(arrays, datasets.KeyOuterContour, outerPath, img, sum)
		}
		if !w.inner && !w.outer {
			continue
		}
		w.path = filepath.Join(b.OutputDir, link.PatientID, strconv.Itoa(id)+".npz")
		if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create directory for %q", w.path)
		}
		if err := datasets.SaveArrays(w.path, arrays); err != nil {
			return nil, err
		}
		sum.Archives++
		out = append(out, w)
	}
	return out, nil
}

// addContour parses and rasterizes a contour into arrays under key. It
// reports whether the contour could be used.
func addContour(arrays map[string]*tensors.Tensor, key, path string, img preprocess.Image, sum *Summary) bool {
	points, err := ParseContour(path)
	if err != nil {
		klog.Errorf("skipping contour: %v", err)
		sum.FailedContours++
		return false
	}
	arrays[key] = datasets.MaskToTensor(Rasterize(points, img.Height, img.Width))
	return true
}
