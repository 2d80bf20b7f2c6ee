// Command buildset turns raw patient images and contour files into the
// sample archives and manifests read by the sweep command and the datasets
// package.
//
// Usage:
//
//	go run ./cmd/buildset -link final_data/link.csv -dicom-dir final_data/dicoms \
//	    -contour-dir final_data/contourfiles -output-dir training
//
// Images must be exported as 2D .npy arrays (one file per slice, named
// <id>.npy) under each patient directory.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Noofbiz/cardiacSeg/builder"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	linkFile := flag.String("link", "final_data/link.csv", "CSV pairing patient_id with original_id")
	imageDir := flag.String("dicom-dir", "final_data/dicoms", "directory of per-patient image directories")
	contourDir := flag.String("contour-dir", "final_data/contourfiles", "directory of per-patient contour directories")
	outputDir := flag.String("output-dir", "training", "directory for archives and manifests")
	ext := flag.String("ext", ".npy", "image file extension")
	logToFile := flag.Bool("log-to-output", true, "also log to <output-dir>/buildset.log")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		klog.Fatalf("failed to create %s: %v", *outputDir, err)
	}
	if *logToFile {
		logPath := filepath.Join(*outputDir, "buildset.log")
		for name, value := range map[string]string{"log_file": logPath, "logtostderr": "false", "alsologtostderr": "true"} {
			if err := flag.Set(name, value); err != nil {
				klog.Fatalf("failed to set -%s: %v", name, err)
			}
		}
	}
	defer klog.Flush()

	links, err := builder.ReadLinks(*linkFile)
	if err != nil {
		klog.Fatalf("%v", err)
	}
	bar := progressbar.Default(int64(len(links)), "Building archives")
	b := &builder.Builder{
		LinkFile:   *linkFile,
		ImageDir:   *imageDir,
		ContourDir: *contourDir,
		OutputDir:  *outputDir,
		ImageExts:  []string{*ext},
		Source:     builder.NpyPixelSource{},
		OnPatient:  func(builder.Link) { _ = bar.Add(1) },
	}
	sum, err := b.Build()
	_ = bar.Finish()
	if err != nil {
		klog.Fatalf("%+v", err)
	}

	fmt.Printf("patients:        %d (%d skipped)\n", sum.Patients, sum.SkippedPatients)
	fmt.Printf("archives:        %d\n", sum.Archives)
	fmt.Printf("  inner contour: %d -> %s\n", sum.Inner, filepath.Join(*outputDir, builder.InnerManifest))
	fmt.Printf("  outer contour: %d -> %s\n", sum.Outer, filepath.Join(*outputDir, builder.OuterManifest))
	fmt.Printf("  both:          %d -> %s\n", sum.Both, filepath.Join(*outputDir, builder.BothManifest))
	if sum.FailedImages > 0 || sum.FailedContours > 0 {
		fmt.Printf("failed:          %d images, %d contours (see log)\n", sum.FailedImages, sum.FailedContours)
	}
}
