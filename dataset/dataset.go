// Package dataset - Batches of microscopy images with their foci masks.
package dataset

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Batch pairs (N,3,H,W) images with their (N,1,H,W) ground-truth masks.
type Batch struct {
	Images *tensor.Dense
	Labels *tensor.Dense
}

// Validate checks that images and labels describe the same samples.
func (b Batch) Validate() error {
	if b.Images == nil || b.Labels == nil {
		return errors.New("batch is missing images or labels")
	}
	is, ls := b.Images.Shape(), b.Labels.Shape()
	if len(is) != 4 || len(ls) != 4 {
		return errors.Errorf("expected 4-d images and labels, got %v and %v", is, ls)
	}
	if is[1] != 3 || ls[1] != 1 {
		return errors.Errorf("expected 3 image channels and 1 label channel, got %d and %d", is[1], ls[1])
	}
	if is[0] != ls[0] || is[2] != ls[2] || is[3] != ls[3] {
		return errors.Errorf("images %v and labels %v disagree", is, ls)
	}
	return nil
}

// Loader yields the batches of one phase in a fixed order.
type Loader interface {
	Len() int
	Batch(i int) (Batch, error)
}

// SliceLoader serves batches held in memory.
type SliceLoader []Batch

// Len returns the number of batches.
func (l SliceLoader) Len() int { return len(l) }

// Batch returns batch i.
func (l SliceLoader) Batch(i int) (Batch, error) {
	if i < 0 || i >= len(l) {
		return Batch{}, errors.Errorf("batch %d out of range [0,%d)", i, len(l))
	}
	return l[i], nil
}
