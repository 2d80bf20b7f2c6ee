package builder

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Noofbiz/cardiacSeg/contours"
	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// IDParser extracts the slice number from a file name.
type IDParser func(name string) (int, error)

// DicomID parses image file names of the form "<id>.<ext>", e.g. "48.dcm".
func DicomID(name string) (int, error) {
	id, err := strconv.Atoi(strings.Split(name, ".")[0])
	if err != nil {
		return 0, errors.Wrapf(err, "image file name %q", name)
	}
	return id, nil
}

// ContourID parses contour file names of the form
// "IM-0001-0048-icontour-manual.txt", where the slice number is the four
// digits after the second dash.
func ContourID(name string) (int, error) {
	if len(name) < 12 {
		return 0, errors.Errorf("contour file name %q is too short", name)
	}
	id, err := strconv.Atoi(name[8:12])
	if err != nil {
		return 0, errors.Wrapf(err, "contour file name %q", name)
	}
	return id, nil
}

// ScanIDs walks dir and maps the id of every file with one of the given
// extensions to its path. Names that don't parse are logged and skipped, as
// is a missing dir.
func ScanIDs(dir string, exts []string, parse IDParser) (map[int]string, error) {
	ids := make(map[int]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				klog.V(1).Infof("directory %s does not exist", dir)
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !hasExt(d.Name(), exts) {
			return nil
		}
		id, perr := parse(d.Name())
		if perr != nil {
			klog.Errorf("%s has a file name that cannot be parsed: %v", path, perr)
			return nil
		}
		if prev, ok := ids[id]; ok {
			klog.Warningf("id %d of %s already used by %s, keeping the latter", id, prev, path)
		}
		ids[id] = path
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %q", dir)
	}
	return ids, nil
}

func hasExt(name string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// ParseContour reads a contour file: one "x y" pair of pixel coordinates per
// line.
func ParseContour(path string) ([]contours.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open contour %q", path)
	}
	defer f.Close()

	var points []contours.Point
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, errors.Errorf("contour %s:%d: expected \"x y\", got %q", path, lineNum, scanner.Text())
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "contour %s:%d", path, lineNum)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "contour %s:%d", path, lineNum)
		}
		points = append(points, contours.Point{X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read contour %q", path)
	}
	if len(points) < 3 {
		return nil, errors.Errorf("contour %q has %d points, a polygon needs 3", path, len(points))
	}
	return points, nil
}

// Rasterize fills the polygon described by points into a height x width
// mask.
func Rasterize(points []contours.Point, height, width int) preprocess.Mask {
	return contours.FillPolygon(points, height, width)
}
