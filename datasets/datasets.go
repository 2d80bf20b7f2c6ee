package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package streams paired image/mask samples, stored as .npz archives
// listed in a manifest, in shuffled fixed-size batches.
//
// Archives are read lazily: the iterator only keeps the manifest and a
// permutation of its indices in memory, and each call to Next reads the
// archives of one batch.
//
// Layout and intended usage:
//
// EpochIterator
//   - Built from a manifest file (LoadManifest) or an in-memory list.
//   - Each epoch is a fresh permutation drawn from the injected *rand.Rand.
//   - Inputs per example: the image, (size, size, 1) float32.
//   - Labels per example: i_contour and, in dual mask mode, o_contour, both
//     (size, size, 1) bool.
//
// The iterator implements this interface in order to interact with GoMLX
// training loops.
type Dataset interface {
	Len() int
	Next() (Batch, error)

	// To implement gomlx's train.Dataset interface
	Name() string
	Reset()
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}

var _ Dataset = (*EpochIterator)(nil)
