package contours

import (
	"context"
	"encoding/csv"
	"io"
	"runtime"
	"strconv"
	"sync"

	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Options controls how a threshold turns an image into a predicted mask.
type Options struct {
	// ScaleImage scales each image within its outer contour to [0, 1] before
	// thresholding, so thresholds are relative rather than raw intensities.
	ScaleImage bool

	// Hull replaces a non-empty prediction with its convex hull.
	Hull bool

	// MinComponent, if > 0, removes predicted components smaller than this
	// many pixels before the hull is taken.
	MinComponent int

	// Workers bounds the thresholds evaluated at once. Defaults to NumCPU.
	Workers int

	// Progress, if set, is called once per evaluated threshold. Calls are
	// serialized.
	Progress func(Score)
}

// Score is the mean Jaccard index of one threshold over all samples.
type Score struct {
	Threshold float64
	MeanIoU   float64
}

// Predict thresholds img within the outer contour following opts. The image
// is used as given: scaling is up to the caller.
func Predict(img preprocess.Image, outer preprocess.Mask, t float64, opts Options) (preprocess.Mask, error) {
	pred, err := Threshold(img, outer, t)
	if err != nil {
		return preprocess.Mask{}, err
	}
	if opts.MinComponent > 0 {
		pred = RemoveSmallComponents(pred, opts.MinComponent)
	}
	if opts.Hull && pred.Count() > 0 {
		pred = ConvexHullMask(pred)
	}
	return pred, nil
}

// Thresholds returns num evenly spaced values from lo to hi inclusive.
func Thresholds(lo, hi float64, num int) []float64 {
	if num <= 0 {
		return nil
	}
	if num == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, num), lo, hi)
}

// Sweep scores every threshold over samples. Results keep the order of
// thresholds.
func Sweep(ctx context.Context, samples []Sample, thresholds []float64, opts Options) ([]Score, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to score")
	}
	images := make([]preprocess.Image, len(samples))
	for i, s := range samples {
		images[i] = s.Image
		if opts.ScaleImage {
			var err error
			if images[i], err = ScaleWithin(s.Image, s.Outer); err != nil {
				return nil, errors.WithMessagef(err, "sample %q", s.ID)
			}
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	scores := make([]Score, len(thresholds))
	var progressMu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ti, t := range thresholds {
		g.Go(func() error {
			ious := make([]float64, len(samples))
			for i, s := range samples {
				if err := ctx.Err(); err != nil {
					return err
				}
				pred, err := Predict(images[i], s.Outer, t, opts)
				if err != nil {
					return errors.WithMessagef(err, "sample %q", s.ID)
				}
				if ious[i], err = Jaccard(pred, s.Inner); err != nil {
					return errors.WithMessagef(err, "sample %q", s.ID)
				}
			}
			scores[ti] = Score{Threshold: t, MeanIoU: stat.Mean(ious, nil)}
			if opts.Progress != nil {
				progressMu.Lock()
				opts.Progress(scores[ti])
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// Best returns the score with the highest mean IoU, the first one on ties.
func Best(scores []Score) (Score, bool) {
	if len(scores) == 0 {
		return Score{}, false
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.MeanIoU > best.MeanIoU {
			best = s
		}
	}
	return best, true
}

// WriteScores writes one "threshold<TAB>mean IoU" line per score.
func WriteScores(w io.Writer, scores []Score) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	for _, s := range scores {
		record := []string{
			strconv.FormatFloat(s.Threshold, 'g', -1, 64),
			strconv.FormatFloat(s.MeanIoU, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "failed to write score")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush scores")
}
