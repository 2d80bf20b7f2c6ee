package contours

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotSweep writes a PNG of mean IoU against threshold, marking the best
// threshold.
func PlotSweep(path, title string, scores []Score) error {
	if len(scores) == 0 {
		return errors.New("no scores to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "threshold"
	p.Y.Label.Text = "mean IoU"

	xys := make(plotter.XYs, len(scores))
	for i, s := range scores {
		xys[i].X = s.Threshold
		xys[i].Y = s.MeanIoU
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	line.Width = vg.Points(1.2)
	p.Add(line)
	p.Legend.Add("mean IoU", line)

	best, _ := Best(scores)
	marker, err := plotter.NewScatter(plotter.XYs{{X: best.Threshold, Y: best.MeanIoU}})
	if err != nil {
		return err
	}
	marker.GlyphStyle.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	marker.GlyphStyle.Radius = vg.Points(3)
	p.Add(marker)
	p.Legend.Add(fmt.Sprintf("best %.3g (%.3f)", best.Threshold, best.MeanIoU), marker)

	p.Add(plotter.NewGrid())
	p.Y.Min = 0
	p.Y.Max = 1

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", path)
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save plot %q", path)
	}
	return nil
}
