package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// writeSplit writes n 8×8 images with a single bright mask pixel at (i, i).
func writeSplit(t *testing.T, dir string, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ImagesDir), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, MasksDir), 0o755))

	for i := 0; i < n; i++ {
		img := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
		mask := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8U)
		for row := 0; row < 8; row++ {
			for col := 0; col < 8; col++ {
				// Pure red in BGR order.
				img.SetUCharAt(row, col*3, 0)
				img.SetUCharAt(row, col*3+1, 0)
				img.SetUCharAt(row, col*3+2, 255)
				mask.SetUCharAt(row, col, 0)
			}
		}
		mask.SetUCharAt(i, i, 255)

		name := string(rune('a'+i)) + ".png"
		require.True(t, gocv.IMWrite(filepath.Join(dir, ImagesDir, name), img))
		require.True(t, gocv.IMWrite(filepath.Join(dir, MasksDir, name), mask))
		img.Close()
		mask.Close()
	}
}

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, 3)

	samples, err := ListDirectory(dir)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, "a.png", samples[0].Name)
	assert.Equal(t, "c.png", samples[2].Name)
}

func TestListDirectoryMissingMask(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, 2)
	require.NoError(t, os.Remove(filepath.Join(dir, MasksDir, "b.png")))

	_, err := ListDirectory(dir)
	assert.Error(t, err)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, 5)

	loader, err := LoadDirectory(dir, 2)
	require.NoError(t, err)
	// The fifth sample does not fill a batch and is dropped.
	require.Equal(t, 2, loader.Len())

	b, err := loader.Batch(1)
	require.NoError(t, err)
	require.NoError(t, b.Validate())
	assert.Equal(t, tensor.Shape{2, 3, 8, 8}, b.Images.Shape())
	assert.Equal(t, tensor.Shape{2, 1, 8, 8}, b.Labels.Shape())

	imgs := b.Images.Data().([]float32)
	assert.InDelta(t, 1.0, imgs[0], 1e-6)  // red plane
	assert.InDelta(t, 0.0, imgs[64], 1e-6) // green plane

	labels := b.Labels.Data().([]float32)
	// Sample "c" has its mask pixel at (2,2).
	assert.Equal(t, float32(1), labels[2*8+2])
	assert.Equal(t, float32(0), labels[0])

	_, err = loader.Batch(2)
	assert.Error(t, err)

	_, err = LoadDirectory(dir, 0)
	assert.Error(t, err)
}

func TestBatchValidate(t *testing.T) {
	imgs := tensor.New(tensor.WithShape(2, 3, 4, 4), tensor.Of(tensor.Float32))
	labels := tensor.New(tensor.WithShape(2, 1, 4, 4), tensor.Of(tensor.Float32))
	assert.NoError(t, Batch{Images: imgs, Labels: labels}.Validate())

	wrong := tensor.New(tensor.WithShape(3, 1, 4, 4), tensor.Of(tensor.Float32))
	assert.Error(t, Batch{Images: imgs, Labels: wrong}.Validate())
	assert.Error(t, Batch{Images: imgs}.Validate())
}

func TestLoadResized(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, 2)

	loader, err := LoadResized(dir, 2, 4, 4)
	require.NoError(t, err)
	require.Equal(t, 1, loader.Len())

	b, err := loader.Batch(0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 4, 4}, b.Images.Shape())
	assert.Equal(t, tensor.Shape{2, 1, 4, 4}, b.Labels.Shape())
	for _, v := range b.Labels.Data().([]float32) {
		assert.True(t, v == 0 || v == 1)
	}
}
