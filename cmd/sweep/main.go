// Command sweep scores intensity thresholds as a segmentation of the inner
// contour, within the outer contour, over one epoch of a dual contour
// manifest.
//
// Usage:
//
//	go run ./cmd/sweep -manifest training/both_contour.txt -num 200 -overlays
//
// It writes <out>/scores.tsv (threshold, mean IoU), <out>/sweep.png and, with
// -overlays, one PNG per sample showing the inner contour in red and the
// prediction at the best threshold in green.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/Noofbiz/cardiacSeg/contours"
	"github.com/Noofbiz/cardiacSeg/datasets"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	configPath := flag.String("config", "", "JSON config file (default: "+defaultConfigPath+", created if missing)")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")
	values := registerFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		klog.Fatalf("%v", err)
	}
	values.apply(flag.CommandLine, &cfg)
	if *printEffectiveConfig {
		out, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(out))
		return
	}
	if err := cfg.validate(); err != nil {
		klog.Fatalf("invalid configuration: %v", err)
	}
	if err := run(context.Background(), cfg); err != nil {
		klog.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, cfg Config) error {
	it, err := datasets.NewEpochIterator(cfg.Manifest, datasets.Config{
		BatchSize:         cfg.BatchSize,
		TargetSize:        cfg.Size,
		TruncateLastBatch: true,
		DualMask:          true,
		Preprocess:        !cfg.Raw,
		OnSampleError:     datasets.SkipSample,
	}, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return err
	}
	klog.Infof("Using manifest %s (%d archives)", cfg.Manifest, it.Len())

	samples, err := contours.CollectEpoch(it)
	if err != nil {
		return err
	}
	memory := uint64(len(samples)) * uint64(cfg.Size*cfg.Size) * (4 + 2)
	klog.Infof("Collected %d samples (%s in memory)", len(samples), humanize.Bytes(memory))

	if gap, err := contours.MeanIntensityGap(samples, cfg.Sweep.Scale); err != nil {
		klog.Warningf("intensity gap: %v", err)
	} else {
		klog.Infof("Mean intensity gap between inner region and ring: %.4f", gap)
	}

	hi := cfg.Sweep.Max
	if !cfg.Sweep.Scale && hi <= 0 {
		if hi, err = contours.MaxIntensity(samples); err != nil {
			return err
		}
		klog.Infof("Using dataset max intensity %.4f as the highest threshold", hi)
	}
	thresholds := contours.Thresholds(cfg.Sweep.Min, hi, cfg.Sweep.Num)

	opts := contours.Options{
		ScaleImage:   cfg.Sweep.Scale,
		Hull:         cfg.Sweep.Hull,
		MinComponent: cfg.Sweep.MinComponent,
		Workers:      cfg.Sweep.Workers,
	}
	bar := progressbar.Default(int64(len(thresholds)), "Sweeping thresholds")
	opts.Progress = func(contours.Score) { _ = bar.Add(1) }
	scores, err := contours.Sweep(ctx, samples, thresholds, opts)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %q", cfg.Output.Dir)
	}
	scoresPath := filepath.Join(cfg.Output.Dir, "scores.tsv")
	f, err := os.Create(scoresPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", scoresPath)
	}
	if err := contours.WriteScores(f, scores); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %q", scoresPath)
	}

	title := "Threshold sweep"
	if opts.ScaleImage {
		title += " (scaled within outer contour)"
	}
	if err := contours.PlotSweep(filepath.Join(cfg.Output.Dir, "sweep.png"), title, scores); err != nil {
		return err
	}
	best, _ := contours.Best(scores)
	klog.Infof("Best threshold %.4f with mean IoU %.4f; results in %s", best.Threshold, best.MeanIoU, cfg.Output.Dir)

	if cfg.Output.Overlays {
		return writeOverlays(samples, best.Threshold, opts, filepath.Join(cfg.Output.Dir, "overlays"))
	}
	return nil
}

// writeOverlays saves one PNG per sample: image in blue, inner contour in
// red, prediction at threshold in green.
func writeOverlays(samples []contours.Sample, threshold float64, opts contours.Options, dir string) error {
	bar := progressbar.Default(int64(len(samples)), "Writing overlays")
	defer func() { _ = bar.Finish() }()
	for _, s := range samples {
		img := s.Image
		if opts.ScaleImage {
			var err error
			if img, err = contours.ScaleWithin(s.Image, s.Outer); err != nil {
				return errors.WithMessagef(err, "sample %q", s.ID)
			}
		}
		pred, err := contours.Predict(img, s.Outer, threshold, opts)
		if err != nil {
			return errors.WithMessagef(err, "sample %q", s.ID)
		}
		overlay, err := contours.Overlay(s.Image, &s.Inner, &pred)
		if err != nil {
			return errors.WithMessagef(err, "sample %q", s.ID)
		}
		if err := contours.SaveOverlay(contours.OverlayPath(dir, s.ID), overlay); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	klog.Infof("Wrote %d overlays to %s", len(samples), dir)
	return nil
}
