package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// defaultConfigPath is where the embedded default configuration is written
// when no -config is given, so it can be edited for the next run.
const defaultConfigPath = "sweep.json"

// defaultConfigJSON is the embedded default configuration. Flags set on the
// command line always override values read from JSON.
const defaultConfigJSON = `{
  "manifest": "training/both_contour.txt",
  "size": 256,
  "raw": false,
  "batch_size": 16,
  "seed": 0,
  "sweep": {
    "min": 0,
    "max": 1,
    "num": 100,
    "scale": true,
    "hull": false,
    "min_component": 0,
    "workers": 0
  },
  "output": {
    "dir": "sweep",
    "overlays": false
  }
}
`

// SweepConfig controls how thresholds are generated and applied.
type SweepConfig struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Num          int     `json:"num"`
	Scale        bool    `json:"scale"`
	Hull         bool    `json:"hull"`
	MinComponent int     `json:"min_component"`
	Workers      int     `json:"workers"`
}

// OutputConfig controls what is written.
type OutputConfig struct {
	Dir      string `json:"dir"`
	Overlays bool   `json:"overlays"`
}

// Config is the effective configuration of a run.
type Config struct {
	Manifest  string       `json:"manifest"`
	Size      int          `json:"size"`
	Raw       bool         `json:"raw"`
	BatchSize int          `json:"batch_size"`
	Seed      int64        `json:"seed"`
	Sweep     SweepConfig  `json:"sweep"`
	Output    OutputConfig `json:"output"`
}

func parseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}
	return cfg, nil
}

// loadConfig reads the JSON at path. With an empty path it uses
// defaultConfigPath, writing the embedded defaults there first if the file
// is missing.
func loadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigPath
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				klog.Warningf("failed to create dir for default config: %v", err)
			} else if err := os.WriteFile(path, []byte(defaultConfigJSON), 0644); err != nil {
				klog.Warningf("failed to write default config to %s: %v", path, err)
			} else {
				klog.Infof("Wrote default config to %s", path)
			}
		}
		if _, err := os.Stat(path); err != nil {
			return parseConfig([]byte(defaultConfigJSON))
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %q", path)
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, errors.WithMessagef(err, "config %q", path)
	}
	klog.Infof("Loaded config from %s", path)
	return cfg, nil
}

// flagValues holds the command line flags that can override the JSON.
type flagValues struct {
	manifest     *string
	size         *int
	raw          *bool
	batchSize    *int
	seed         *int64
	min, max     *float64
	num          *int
	scale        *bool
	hull         *bool
	minComponent *int
	workers      *int
	out          *string
	overlays     *bool
}

func registerFlags(fs *flag.FlagSet) *flagValues {
	return &flagValues{
		manifest:     fs.String("manifest", "training/both_contour.txt", "manifest of dual contour archives"),
		size:         fs.Int("size", 256, "side of the square images the analysis runs on"),
		raw:          fs.Bool("raw", false, "skip preprocessing; archives must already be size x size"),
		batchSize:    fs.Int("batch-size", 16, "samples read per batch while collecting the epoch"),
		seed:         fs.Int64("seed", 0, "random seed for the epoch order"),
		min:          fs.Float64("min", 0, "lowest threshold"),
		max:          fs.Float64("max", 1, "highest threshold; <= 0 without -scale uses the dataset max intensity"),
		num:          fs.Int("num", 100, "number of thresholds"),
		scale:        fs.Bool("scale", true, "scale images within the outer contour before thresholding"),
		hull:         fs.Bool("hull", false, "replace predictions with their convex hull"),
		minComponent: fs.Int("min-component", 0, "drop predicted components smaller than this many pixels (0 keeps all)"),
		workers:      fs.Int("workers", 0, "thresholds evaluated in parallel (0 = NumCPU)"),
		out:          fs.String("out", "sweep", "output directory for scores.tsv, sweep.png and overlays"),
		overlays:     fs.Bool("overlays", false, "write an overlay PNG per sample at the best threshold"),
	}
}

// apply overrides cfg with the flags that were set explicitly.
func (v *flagValues) apply(fs *flag.FlagSet, cfg *Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "manifest":
			cfg.Manifest = *v.manifest
		case "size":
			cfg.Size = *v.size
		case "raw":
			cfg.Raw = *v.raw
		case "batch-size":
			cfg.BatchSize = *v.batchSize
		case "seed":
			cfg.Seed = *v.seed
		case "min":
			cfg.Sweep.Min = *v.min
		case "max":
			cfg.Sweep.Max = *v.max
		case "num":
			cfg.Sweep.Num = *v.num
		case "scale":
			cfg.Sweep.Scale = *v.scale
		case "hull":
			cfg.Sweep.Hull = *v.hull
		case "min-component":
			cfg.Sweep.MinComponent = *v.minComponent
		case "workers":
			cfg.Sweep.Workers = *v.workers
		case "out":
			cfg.Output.Dir = *v.out
		case "overlays":
			cfg.Output.Overlays = *v.overlays
		}
	})
}

func (c Config) validate() error {
	if c.Manifest == "" {
		return errors.New("no manifest given")
	}
	if c.Size <= 0 || c.BatchSize <= 0 {
		return errors.Errorf("size (%d) and batch size (%d) must be > 0", c.Size, c.BatchSize)
	}
	if c.Sweep.Num <= 0 {
		return errors.Errorf("number of thresholds must be > 0, got %d", c.Sweep.Num)
	}
	return nil
}
