package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/cardiacSeg/datasets"
	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/numpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile writes content to path, creating parent directories.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// writePixels writes an 8x8 int16 image as .npy.
func writePixels(t *testing.T, path string, value int16) {
	t.Helper()
	data := make([]int16, 64)
	for i := range data {
		data[i] = value + int16(i)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := numpy.ToNpyFile(tensors.FromFlatDataAndDimensions(data, 8, 8), path); err != nil {
		t.Fatalf("failed to write pixels %s: %v", path, err)
	}
}

const square = "2.0 2.0\n6.0 2.0\n6.0 6.0\n2.0 6.0\n"
const wide = "0 0\n8 0\n8 6\n0 6\n"

func TestIDParsers(t *testing.T) {
	id, err := DicomID("48.dcm")
	require.NoError(t, err)
	assert.Equal(t, 48, id)
	_, err = DicomID("notes.dcm")
	assert.Error(t, err)

	id, err = ContourID("IM-0001-0048-icontour-manual.txt")
	require.NoError(t, err)
	assert.Equal(t, 48, id)
	_, err = ContourID("IM-0001-00ab-icontour-manual.txt")
	assert.Error(t, err)
	_, err = ContourID("IM-1.txt")
	assert.Error(t, err)
}

func TestScanIDs(t *testing.T) {
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, "1.dcm"), "x")
	writeFile(t, filepath.Join(tmp, "nested", "20.dcm"), "x")
	writeFile(t, filepath.Join(tmp, "bad.dcm"), "x")
	writeFile(t, filepath.Join(tmp, "3.txt"), "x")

	ids, err := ScanIDs(tmp, []string{".dcm"}, DicomID)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{
		1:  filepath.Join(tmp, "1.dcm"),
		20: filepath.Join(tmp, "nested", "20.dcm"),
	}, ids)

	ids, err = ScanIDs(filepath.Join(tmp, "missing"), []string{".dcm"}, DicomID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestParseContour(t *testing.T) {
	tmp := t.TempDir()
	good := filepath.Join(tmp, "good.txt")
	writeFile(t, good, "120.5 137.25\n121.0 138.0\n\n119 139\n")
	points, err := ParseContour(good)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 120.5, points[0].X)
	assert.Equal(t, 137.25, points[0].Y)

	for name, content := range map[string]string{
		"letters.txt": "1 2\nx y\n3 4\n",
		"single.txt":  "1\n",
		"short.txt":   "1 2\n3 4\n",
	} {
		path := filepath.Join(tmp, name)
		writeFile(t, path, content)
		_, err := ParseContour(path)
		assert.Error(t, err, name)
	}
	_, err = ParseContour(filepath.Join(tmp, "missing.txt"))
	assert.Error(t, err)
}

func TestRasterize(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "c.txt")
	writeFile(t, path, square)
	points, err := ParseContour(path)
	require.NoError(t, err)
	m := Rasterize(points, 8, 10)
	assert.Equal(t, 8, m.Height)
	assert.Equal(t, 10, m.Width)
	assert.Equal(t, 16, m.Count())
	assert.True(t, m.At(2, 2))
	assert.False(t, m.At(6, 6))
}

func TestReadLinks(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "link.csv")
	writeFile(t, path, "patient_id,original_id\nSCD0000101,SC-HF-I-1\nSCD0000201,SC-HF-I-2\n")
	links, err := ReadLinks(path)
	require.NoError(t, err)
	assert.Equal(t, []Link{
		{PatientID: "SCD0000101", OriginalID: "SC-HF-I-1"},
		{PatientID: "SCD0000201", OriginalID: "SC-HF-I-2"},
	}, links)

	writeFile(t, path, "patient_id,other\nSCD0000101,x\n")
	_, err = ReadLinks(path)
	assert.Error(t, err)

	_, err = ReadLinks(filepath.Join(tmp, "missing.csv"))
	assert.Error(t, err)
}

// dataTree lays out one complete patient and one whose image directory is
// missing, and returns a Builder over them.
func dataTree(t *testing.T) *Builder {
	t.Helper()
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, "link.csv"), "patient_id,original_id\nSCD0000101,SC-HF-I-1\nSCD0000201,SC-HF-I-2\n")

	images := filepath.Join(tmp, "dicoms", "SCD0000101")
	for id, value := range map[string]int16{"1": 10, "2": 20, "3": 30, "4": 40, "5": 50} {
		writePixels(t, filepath.Join(images, id+".npy"), value)
	}
	contourDir := filepath.Join(tmp, "contourfiles", "SC-HF-I-1")
	writeFile(t, filepath.Join(contourDir, "i-contours", "IM-0001-0001-icontour-manual.txt"), square)
	writeFile(t, filepath.Join(contourDir, "i-contours", "IM-0001-0002-icontour-manual.txt"), square)
	writeFile(t, filepath.Join(contourDir, "i-contours", "IM-0001-0004-icontour-manual.txt"), "broken\n")
	writeFile(t, filepath.Join(contourDir, "o-contours", "IM-0001-0001-ocontour-manual.txt"), wide)
	writeFile(t, filepath.Join(contourDir, "o-contours", "IM-0001-0003-ocontour-manual.txt"), wide)

	return &Builder{
		LinkFile:   filepath.Join(tmp, "link.csv"),
		ImageDir:   filepath.Join(tmp, "dicoms"),
		ContourDir: filepath.Join(tmp, "contourfiles"),
		OutputDir:  filepath.Join(tmp, "training"),
		ImageExts:  []string{".npy"},
		Source:     NpyPixelSource{},
	}
}

func TestBuild(t *testing.T) {
	b := dataTree(t)
	var patients []string
	b.OnPatient = func(l Link) { patients = append(patients, l.PatientID) }

	sum, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"SCD0000101", "SCD0000201"}, patients)
	assert.Equal(t, Summary{
		Patients: 2, SkippedPatients: 1, Archives: 3,
		Inner: 2, Outer: 2, Both: 1, FailedContours: 1,
	}, sum)

	archive := func(id string) string { return filepath.Join(b.OutputDir, "SCD0000101", id+".npz") }
	for name, want := range map[string][]string{
		InnerManifest: {archive("1"), archive("2")},
		OuterManifest: {archive("1"), archive("3")},
		BothManifest:  {archive("1")},
	} {
		got, err := datasets.LoadManifest(filepath.Join(b.OutputDir, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	rec, err := datasets.LoadRecord(archive("1"), true)
	require.NoError(t, err)
	assert.Equal(t, float32(10), rec.Image.At(0, 0))
	assert.Equal(t, float32(10+63), rec.Image.At(7, 7))
	assert.Equal(t, 16, rec.Inner.Count())
	assert.Equal(t, 48, rec.Outer.Count())

	// Only an outer contour: fine for the o_contour manifest, not for a
	// reader that needs the inner one.
	_, err = datasets.LoadRecord(archive("3"), false)
	assert.Error(t, err)
	_, err = os.Stat(archive("4"))
	assert.True(t, os.IsNotExist(err), "an image whose only contour is broken gets no archive")
}

func TestBuild_PixelSourceFailure(t *testing.T) {
	b := dataTree(t)
	b.Source = PixelSourceFunc(func(path string) (preprocess.Image, error) {
		if filepath.Base(path) == "2.npy" {
			return preprocess.Image{}, os.ErrInvalid
		}
		return NpyPixelSource{}.Pixels(path)
	})
	sum, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FailedImages)
	assert.Equal(t, 2, sum.Archives)
	assert.Equal(t, 1, sum.Inner)

	b.Source = nil
	_, err = b.Build()
	assert.Error(t, err)
}

func TestBuild_FeedsIterator(t *testing.T) {
	b := dataTree(t)
	_, err := b.Build()
	require.NoError(t, err)

	it, err := datasets.NewEpochIterator(filepath.Join(b.OutputDir, BothManifest), datasets.Config{
		BatchSize: 1, TargetSize: 4, DualMask: true, Preprocess: true,
	}, nil)
	require.NoError(t, err)
	batch, err := it.Next()
	require.NoError(t, err)
	dual := batch.(*datasets.DualMaskBatch)
	assert.Equal(t, []int{1, 4, 4, 1}, dual.Inner.Shape())
	assert.Equal(t, 4, dual.Inner.Example(0).Count())
	assert.Equal(t, 12, dual.Outer.Example(0).Count())
}
