package contours

import (
	"image"
	"sort"

	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/pkg/errors"
	"golang.org/x/image/vector"
)

func sameShape(h1, w1, h2, w2 int) error {
	if h1 != h2 || w1 != w2 {
		return errors.Wrapf(preprocess.ErrShape, "%dx%d vs %dx%d", h1, w1, h2, w2)
	}
	return nil
}

// Jaccard returns the intersection over union of two masks. Two empty masks
// agree perfectly and score 1.
func Jaccard(predicted, truth preprocess.Mask) (float64, error) {
	if err := sameShape(predicted.Height, predicted.Width, truth.Height, truth.Width); err != nil {
		return 0, err
	}
	var intersection, union int
	for i, p := range predicted.Pix {
		t := truth.Pix[i]
		if p && t {
			intersection++
		}
		if p || t {
			union++
		}
	}
	if union == 0 {
		return 1, nil
	}
	return float64(intersection) / float64(union), nil
}

// ScaleWithin min-max scales the pixels inside region to [0, 1] and zeroes
// everything outside it. A flat region scales to 0.
func ScaleWithin(img preprocess.Image, region preprocess.Mask) (preprocess.Image, error) {
	if err := sameShape(img.Height, img.Width, region.Height, region.Width); err != nil {
		return preprocess.Image{}, err
	}
	out := preprocess.NewImage(img.Height, img.Width)
	first := true
	var lo, hi float32
	for i, in := range region.Pix {
		if !in {
			continue
		}
		v := img.Pix[i]
		if first {
			lo, hi, first = v, v, false
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if first || hi == lo {
		return out, nil
	}
	span := hi - lo
	for i, in := range region.Pix {
		if in {
			out.Pix[i] = (img.Pix[i] - lo) / span
		}
	}
	return out, nil
}

// Threshold marks the pixels of img that exceed t once everything outside
// region is zeroed.
func Threshold(img preprocess.Image, region preprocess.Mask, t float64) (preprocess.Mask, error) {
	if err := sameShape(img.Height, img.Width, region.Height, region.Width); err != nil {
		return preprocess.Mask{}, err
	}
	out := preprocess.NewMask(img.Height, img.Width)
	for i, v := range img.Pix {
		if !region.Pix[i] {
			v = 0
		}
		out.Pix[i] = float64(v) > t
	}
	return out, nil
}

// RemoveSmallComponents clears the 4-connected foreground components with
// fewer than minSize pixels.
func RemoveSmallComponents(m preprocess.Mask, minSize int) preprocess.Mask {
	out := preprocess.NewMask(m.Height, m.Width)
	copy(out.Pix, m.Pix)
	visited := make([]bool, len(m.Pix))
	var stack, component []int
	for start, fg := range m.Pix {
		if !fg || visited[start] {
			continue
		}
		component = component[:0]
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, idx)
			y, x := idx/m.Width, idx%m.Width
			for _, n := range [4][2]int{{y - 1, x}, {y + 1, x}, {y, x - 1}, {y, x + 1}} {
				if n[0] < 0 || n[0] >= m.Height || n[1] < 0 || n[1] >= m.Width {
					continue
				}
				nIdx := n[0]*m.Width + n[1]
				if m.Pix[nIdx] && !visited[nIdx] {
					visited[nIdx] = true
					stack = append(stack, nIdx)
				}
			}
		}
		if len(component) < minSize {
			for _, idx := range component {
				out.Pix[idx] = false
			}
		}
	}
	return out
}

// Point is a position in pixel coordinates: X grows right, Y grows down, and
// pixel (x, y) covers [x, x+1) x [y, y+1).
type Point struct {
	X, Y float64
}

// ConvexHull returns the convex hull of points in counter-clockwise order,
// without collinear points.
func ConvexHull(points []Point) []Point {
	pts := append([]Point(nil), points...)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})
	if len(pts) < 3 {
		return pts
	}
	cross := func(o, a, b Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}
	hull := make([]Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// FillPolygon rasterizes a closed polygon into a height x width mask. A pixel
// is set when the polygon covers at least half of it.
func FillPolygon(polygon []Point, height, width int) preprocess.Mask {
	out := preprocess.NewMask(height, width)
	if len(polygon) < 3 {
		return out
	}
	r := vector.NewRasterizer(width, height)
	r.MoveTo(float32(polygon[0].X), float32(polygon[0].Y))
	for _, p := range polygon[1:] {
		r.LineTo(float32(p.X), float32(p.Y))
	}
	r.ClosePath()
	coverage := image.NewAlpha(image.Rect(0, 0, width, height))
	r.Draw(coverage, coverage.Bounds(), image.Opaque, image.Point{})
	for y := range height {
		for x := range width {
			out.Pix[y*width+x] = coverage.AlphaAt(x, y).A >= 128
		}
	}
	return out
}

// ConvexHullMask fills the convex hull of the foreground pixels. Every
// foreground pixel stays set.
func ConvexHullMask(m preprocess.Mask) preprocess.Mask {
	var corners []Point
	for idx, fg := range m.Pix {
		if !fg {
			continue
		}
		x, y := float64(idx%m.Width), float64(idx/m.Width)
		corners = append(corners, Point{x, y}, Point{x + 1, y}, Point{x, y + 1}, Point{x + 1, y + 1})
	}
	out := FillPolygon(ConvexHull(corners), m.Height, m.Width)
	for i, fg := range m.Pix {
		out.Pix[i] = out.Pix[i] || fg
	}
	return out
}
