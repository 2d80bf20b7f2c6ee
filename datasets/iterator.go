package datasets

import (
	"math/rand"
	"sync"
	"time"

	"github.com/Noofbiz/cardiacSeg/preprocess"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/numpy"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config holds the iterator parameters. It is copied at construction and
// never changes afterwards.
type Config struct {
	// BatchSize is the number of samples per batch. Must be > 0.
	BatchSize int

	// TargetSize is the side of the square images and masks in a batch.
	// Must be > 0.
	TargetSize int

	// TruncateLastBatch makes the last batch of an epoch hold only the
	// samples left in it. Otherwise the batch wraps into the next epoch.
	TruncateLastBatch bool

	// DualMask loads o_contour next to i_contour.
	DualMask bool

	// Preprocess runs the preprocessing pipeline on each sample. When unset,
	// archives must already hold TargetSize*TargetSize elements per array.
	Preprocess bool

	// MaxIntensity, if > 0, is the fixed divisor for intensity rescaling.
	// Zero rescales each image by its own maximum.
	MaxIntensity float64

	// OnSampleError selects what happens to a sample that fails to load or
	// process. Defaults to FailBatch.
	OnSampleError SampleErrorPolicy
}

// Validate checks the numeric parameters.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return errors.Errorf("invalid batch size %d, must be > 0", c.BatchSize)
	}
	if c.TargetSize <= 0 {
		return errors.Errorf("invalid target size %d, must be > 0", c.TargetSize)
	}
	if c.MaxIntensity < 0 {
		return errors.Errorf("invalid max intensity %g, must be >= 0", c.MaxIntensity)
	}
	return nil
}

// EpochIterator yields batches of samples from a manifest. Each epoch visits
// every manifest entry exactly once, in an order drawn from its random
// source, and a new permutation is drawn when an epoch is exhausted.
//
// It is safe to call its methods from multiple goroutines, though batches
// are produced one at a time.
type EpochIterator struct {
	name  string
	cfg   Config
	files []string
	read  ArchiveReader

	pipeline preprocess.Pipeline

	mu       sync.Mutex
	rng      *rand.Rand
	order    []int
	position int
	epoch    int
}

// NewEpochIterator loads the manifest at manifestPath and returns an iterator
// over it positioned at the start of epoch 1. A nil rng uses a time-seeded
// source.
func NewEpochIterator(manifestPath string, cfg Config, rng *rand.Rand) (*EpochIterator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	files, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrEmptyManifest, "manifest %q", manifestPath)
	}
	return newEpochIterator(manifestPath, files, cfg, rng), nil
}

// NewEpochIteratorFromList is like NewEpochIterator for a manifest already in
// memory. The locations are used as given.
func NewEpochIteratorFromList(name string, files []string, cfg Config, rng *rand.Rand) (*EpochIterator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrEmptyManifest, "dataset %q", name)
	}
	return newEpochIterator(name, append([]string(nil), files...), cfg, rng), nil
}

func newEpochIterator(name string, files []string, cfg Config, rng *rand.Rand) *EpochIterator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	it := &EpochIterator{
		name:     name,
		cfg:      cfg,
		files:    files,
		read:     numpy.FromNpzFile,
		pipeline: preprocess.Pipeline{Size: cfg.TargetSize, MaxIntensity: cfg.MaxIntensity},
		rng:      rng,
		order:    make([]int, len(files)),
	}
	for i := range it.order {
		it.order[i] = i
	}
	it.shuffleAndReset()
	return it
}

// shuffleAndReset starts a new epoch. Callers must hold mu (or own it during
// construction).
func (it *EpochIterator) shuffleAndReset() {
	it.rng.Shuffle(len(it.order), func(i, j int) {
		it.order[i], it.order[j] = it.order[j], it.order[i]
	})
	it.position = 0
	it.epoch++
	klog.V(1).Infof("%s: starting epoch %d over %d samples", it.name, it.epoch, len(it.order))
}

// Next returns the next batch.
//
// On a per-sample failure with the FailBatch policy it returns a
// *SampleError; the identifiers selected for the batch are consumed anyway.
func (it *EpochIterator) Next() (Batch, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	n := len(it.order)
	count := it.cfg.BatchSize
	if it.cfg.TruncateLastBatch {
		count = min(count, n-it.position)
	}
	paths := make([]string, count)
	for i := range count {
		if it.position == n {
			it.shuffleAndReset()
		}
		paths[i] = it.files[it.order[it.position]]
		it.position++
	}
	if it.position == n {
		it.shuffleAndReset()
	}

	ids := make([]string, 0, count)
	samples := make([]preprocess.Sample, 0, count)
	for _, path := range paths {
		sample, err := it.loadSample(path)
		if err != nil {
			if it.cfg.OnSampleError == SkipSample {
				klog.Warningf("%s: skipping sample: %v", it.name, err)
				continue
			}
			return nil, err
		}
		ids = append(ids, path)
		samples = append(samples, sample)
	}
	return Assemble(it.cfg.TargetSize, it.cfg.DualMask, ids, samples)
}

// loadSample reads one archive and turns it into a batch entry. Errors are
// always *SampleError.
func (it *EpochIterator) loadSample(path string) (preprocess.Sample, error) {
	rec, err := loadRecord(it.read, path, it.cfg.DualMask)
	if err != nil {
		return preprocess.Sample{}, &SampleError{Path: path, Kind: KindArchiveMalformed, Err: err}
	}
	if !it.cfg.Preprocess {
		sample, err := passthrough(rec, it.cfg.TargetSize)
		if err != nil {
			return preprocess.Sample{}, &SampleError{
				Path: path, Kind: KindArchiveMalformed, Err: errors.Wrap(ErrArchiveMalformed, err.Error())}
		}
		return sample, nil
	}
	sample, ok, cause := it.pipeline.Run(path, rec.Image, rec.Masks()...)
	if !ok {
		return preprocess.Sample{}, &SampleError{
			Path: path, Kind: KindProcessingFailure, Err: errors.Wrap(ErrProcessingFailure, cause.Error())}
	}
	return sample, nil
}

// passthrough reinterprets unprocessed arrays as size x size, which requires
// exactly size*size elements.
func passthrough(rec *Record, size int) (preprocess.Sample, error) {
	n := size * size
	if len(rec.Image.Pix) != n {
		return preprocess.Sample{}, errors.Errorf("unprocessed image is %dx%d, cannot reshape to %dx%d",
			rec.Image.Height, rec.Image.Width, size, size)
	}
	sample := preprocess.Sample{
		Image: preprocess.Image{Height: size, Width: size, Pix: rec.Image.Pix},
	}
	for _, m := range rec.Masks() {
		// Masks share the image shape, checked by loadRecord.
		sample.Masks = append(sample.Masks, preprocess.Mask{Height: size, Width: size, Pix: m.Pix})
	}
	return sample, nil
}

// Epoch is the current epoch number, 1 right after construction.
func (it *EpochIterator) Epoch() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.epoch
}

// Position is the cursor within the current epoch's order.
func (it *EpochIterator) Position() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.position
}

// Len is the number of manifest entries.
func (it *EpochIterator) Len() int {
	return len(it.files)
}

// Files returns a copy of the manifest entries, in manifest order.
func (it *EpochIterator) Files() []string {
	return append([]string(nil), it.files...)
}

// Config returns the iterator configuration.
func (it *EpochIterator) Config() Config {
	return it.cfg
}

// Name implements train.Dataset.
func (it *EpochIterator) Name() string {
	return it.name
}

// Reset implements train.Dataset by starting a new epoch with a fresh
// permutation.
func (it *EpochIterator) Reset() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.shuffleAndReset()
}

// Yield implements train.Dataset. Inputs hold the image stack; labels hold
// the inner mask stack and, in dual mask mode, the outer one. A batch whose
// samples were all skipped yields ErrEmptyBatch.
func (it *EpochIterator) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	batch, err := it.Next()
	if err != nil {
		return nil, nil, nil, err
	}
	if batch.Len() == 0 {
		return nil, nil, nil, errors.Wrapf(ErrEmptyBatch, "dataset %q", it.name)
	}
	inputs, labels = batch.Tensors()
	return nil, inputs, labels, nil
}
