package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func batch(n, c, h, w int, fill func(i int) float32) *tensor.Dense {
	data := make([]float32, n*c*h*w)
	for i := range data {
		data[i] = fill(i)
	}
	return tensor.New(tensor.WithShape(n, c, h, w), tensor.WithBacking(data))
}

func TestAt(t *testing.T) {
	b := batch(3, 1, 2, 2, func(i int) float32 { return float32(i) })

	s, err := At(b, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Channels)
	assert.Equal(t, []float32{4, 5, 6, 7}, s.Data)

	_, err = At(b, 3)
	assert.Error(t, err)
	_, err = At(b, -1)
	assert.Error(t, err)
}

func TestAtRejectsWrongShape(t *testing.T) {
	flat := tensor.New(tensor.WithShape(4), tensor.WithBacking([]float32{1, 2, 3, 4}))
	_, err := At(flat, 0)
	assert.Error(t, err)

	_, err = BatchSize(nil)
	assert.Error(t, err)
}

func TestSampleAny(t *testing.T) {
	b := batch(2, 1, 2, 2, func(i int) float32 {
		if i == 6 {
			return 1
		}
		return 0
	})
	first, err := At(b, 0)
	require.NoError(t, err)
	second, err := At(b, 1)
	require.NoError(t, err)

	assert.False(t, first.Any())
	assert.True(t, second.Any())
}

func TestBinarize(t *testing.T) {
	s := Sample{Channels: 1, Rows: 2, Cols: 3, Data: []float32{0, 0.5, 0.51, 0.99, 1, 2}}

	pred, err := Binarize(s, 0, Above(0.5))
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 1, 1, 1, 1}, pred.Pix)

	truth, err := Binarize(s, 0, Truncated)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 0, 0, 1, 1}, truth.Pix)

	_, err = Binarize(s, 1, Truncated)
	assert.Error(t, err)
}

func TestToBGR(t *testing.T) {
	// One pixel: R=1, G=0.5, B=-1 (clamped).
	s := Sample{Channels: 3, Rows: 1, Cols: 1, Data: []float32{1, 0.5, -1}}
	mat, err := ToBGR(s)
	require.NoError(t, err)
	defer mat.Close()

	assert.Equal(t, uint8(0), mat.GetUCharAt(0, 0))
	assert.Equal(t, uint8(128), mat.GetUCharAt(0, 1))
	assert.Equal(t, uint8(255), mat.GetUCharAt(0, 2))

	_, err = ToBGR(Sample{Channels: 1, Rows: 1, Cols: 1, Data: []float32{0}})
	assert.Error(t, err)
}
