package main

// Example command that walks one epoch of a sample manifest with the
// EpochIterator and prints the shape and size of every batch.
//
// Archives are read lazily, one batch at a time, so memory use is bounded by
// the batch size rather than the dataset size.
//
// Usage:
//   go run ./datasets/example -manifest training/both_contour.txt -dual
//
// The manifest is normally produced by cmd/buildset.

import (
	"flag"
	"fmt"
	"math/rand"

	"github.com/Noofbiz/cardiacSeg/datasets"
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	manifest := flag.String("manifest", "training/i_contour.txt", "manifest listing one .npz archive per line")
	batchSize := flag.Int("batch-size", 8, "samples per batch")
	size := flag.Int("size", 64, "side of the square images in a batch")
	dual := flag.Bool("dual", false, "load o_contour as a second label")
	raw := flag.Bool("raw", false, "skip preprocessing; archives must already be size x size")
	seed := flag.Int64("seed", 0, "random seed")
	flag.Parse()

	it, err := datasets.NewEpochIterator(*manifest, datasets.Config{
		BatchSize:         *batchSize,
		TargetSize:        *size,
		TruncateLastBatch: true,
		DualMask:          *dual,
		Preprocess:        !*raw,
		OnSampleError:     datasets.SkipSample,
	}, rand.New(rand.NewSource(*seed)))
	if err != nil {
		klog.Fatalf("failed to open dataset: %v", err)
	}
	fmt.Printf("Using manifest: %s\n", *manifest)
	fmt.Printf("Total samples available: %d\n", it.Len())

	var samples int
	var bytes uint64
	for batchIdx := 0; it.Epoch() == 1; batchIdx++ {
		batch, err := it.Next()
		if err != nil {
			klog.Fatalf("failed to build batch %d: %v", batchIdx, err)
		}
		inputs, labels := batch.Tensors()
		if batch.Len() == 0 {
			fmt.Printf("Batch %d: every sample was skipped\n", batchIdx)
			continue
		}
		var batchBytes uint64
		for _, t := range append(inputs, labels...) {
			batchBytes += uint64(t.Memory())
		}
		samples += batch.Len()
		bytes += batchBytes
		fmt.Printf("Batch %d: %d samples, input %v, %d label(s) %v, %s\n",
			batchIdx, batch.Len(), inputs[0].Shape().Dimensions, len(labels), labels[0].Shape().Dimensions,
			humanize.Bytes(batchBytes))
		if batchIdx == 0 {
			fmt.Printf("  First sample: %s\n", batch.SampleIDs()[0])
		}
	}
	fmt.Printf("Epoch done: %d samples, %s of tensors\n", samples, humanize.Bytes(bytes))
}
