// Package images - Conversions between channel-first float tensors, foci masks
// and OpenCV matrices.
package images

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// Sample is one (C,H,W) slice of a batch tensor, viewed as plain float32 data.
type Sample struct {
	Channels int
	Rows     int
	Cols     int
	Data     []float32
}

// Plane returns the pixels of channel c.
func (s Sample) Plane(c int) []float32 {
	n := s.Rows * s.Cols
	return s.Data[c*n : (c+1)*n]
}

// Any reports whether any pixel of the sample is greater than zero.
func (s Sample) Any() bool {
	for _, v := range s.Data {
		if v > 0 {
			return true
		}
	}
	return false
}

// BatchSize returns the leading dimension of an (N,C,H,W) tensor.
func BatchSize(t *tensor.Dense) (int, error) {
	if t == nil {
		return 0, errors.New("tensor is nil")
	}
	if t.Dims() != 4 {
		return 0, errors.Errorf("expected a 4-d (N,C,H,W) tensor, got shape %v", t.Shape())
	}
	return t.Shape()[0], nil
}

// At extracts sample i of an (N,C,H,W) float32 tensor.
//
// Arguments:
//   - t: The batch tensor.
//   - i: The sample index.
//
// Returns:
//   - Sample: A view of the sample's data. The backing array is shared with t.
//   - error: An error if the tensor is not a 4-d float32 tensor or i is out of range.
func At(t *tensor.Dense, i int) (Sample, error) {
	n, err := BatchSize(t)
	if err != nil {
		return Sample{}, err
	}
	if i < 0 || i >= n {
		return Sample{}, errors.Errorf("sample %d out of range [0,%d)", i, n)
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return Sample{}, errors.Errorf("expected float32 data, got %v", t.Dtype())
	}
	shape := t.Shape()
	c, h, w := shape[1], shape[2], shape[3]
	size := c * h * w
	return Sample{Channels: c, Rows: h, Cols: w, Data: data[i*size : (i+1)*size]}, nil
}

// ToBGR renders a 3-channel RGB sample with values in [0,1] into an 8-bit BGR
// matrix. Values outside [0,1] are clamped.
//
// The caller owns the returned Mat and must Close it.
func ToBGR(s Sample) (gocv.Mat, error) {
	if s.Channels != 3 {
		return gocv.Mat{}, errors.Errorf("expected 3 channels, got %d", s.Channels)
	}
	r, g, b := s.Plane(0), s.Plane(1), s.Plane(2)
	mat := gocv.NewMatWithSize(s.Rows, s.Cols, gocv.MatTypeCV8UC3)
	for row := 0; row < s.Rows; row++ {
		for col := 0; col < s.Cols; col++ {
			i := row*s.Cols + col
			mat.SetUCharAt(row, col*3, toByte(b[i]))
			mat.SetUCharAt(row, col*3+1, toByte(g[i]))
			mat.SetUCharAt(row, col*3+2, toByte(r[i]))
		}
	}
	return mat, nil
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}
