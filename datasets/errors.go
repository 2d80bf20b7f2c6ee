package datasets

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrManifestUnreadable is returned when the manifest file itself cannot
	// be opened or read.
	ErrManifestUnreadable = errors.New("manifest unreadable")

	// ErrEmptyManifest is returned when no manifest entry resolves to an
	// existing archive.
	ErrEmptyManifest = errors.New("manifest has no resolvable archives")

	// ErrArchiveMalformed matches archives that miss a required key or whose
	// arrays don't have the expected type or shape.
	ErrArchiveMalformed = errors.New("archive malformed")

	// ErrProcessingFailure matches samples the preprocessing pipeline could
	// not turn into a result.
	ErrProcessingFailure = errors.New("sample processing failed")

	// ErrEmptyBatch is returned by Yield when every sample of a batch was
	// skipped.
	ErrEmptyBatch = errors.New("every sample of the batch was skipped")
)

// SampleErrorKind classifies per-sample failures.
type SampleErrorKind int

const (
	KindArchiveMalformed SampleErrorKind = iota
	KindProcessingFailure
)

func (k SampleErrorKind) String() string {
	switch k {
	case KindArchiveMalformed:
		return "ArchiveMalformed"
	case KindProcessingFailure:
		return "ProcessingFailure"
	default:
		return fmt.Sprintf("SampleErrorKind(%d)", int(k))
	}
}

// SampleError identifies the archive that made a batch fail.
type SampleError struct {
	Path string
	Kind SampleErrorKind
	Err  error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("%s: sample %q: %v", e.Kind, e.Path, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrArchiveMalformed) and
// errors.Is(err, ErrProcessingFailure) match on the kind.
func (e *SampleError) Is(target error) bool {
	switch target {
	case ErrArchiveMalformed:
		return e.Kind == KindArchiveMalformed
	case ErrProcessingFailure:
		return e.Kind == KindProcessingFailure
	}
	return false
}

// SampleErrorPolicy selects what EpochIterator.Next does with a sample that
// fails to load or process.
type SampleErrorPolicy int

const (
	// FailBatch makes Next return a *SampleError. The identifiers selected
	// for the failed batch are still consumed.
	FailBatch SampleErrorPolicy = iota

	// SkipSample logs the failure and drops the sample, so the batch is
	// smaller than requested.
	SkipSample
)
