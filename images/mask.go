package images

import (
	"github.com/nvr-ai/go-foci/foci"
	"github.com/pkg/errors"
)

// Binarize converts channel c of a sample into a foci.Mask using keep to
// decide which pixels are foreground.
func Binarize(s Sample, c int, keep func(v float32) bool) (foci.Mask, error) {
	if c < 0 || c >= s.Channels {
		return foci.Mask{}, errors.Errorf("channel %d out of range [0,%d)", c, s.Channels)
	}
	mask := foci.NewMask(s.Rows, s.Cols)
	for i, v := range s.Plane(c) {
		if keep(v) {
			mask.Pix[i] = 1
		}
	}
	return mask, nil
}

// Truncated treats a pixel as foreground when its integer part is non-zero.
func Truncated(v float32) bool {
	return int(v) != 0
}

// Above returns a predicate selecting pixels strictly greater than threshold.
func Above(threshold float32) func(float32) bool {
	return func(v float32) bool {
		return v > threshold
	}
}
