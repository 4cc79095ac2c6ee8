package dataset

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/nvr-ai/go-foci/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

const (
	// ImagesDir holds the RGB microscopy images of a split.
	ImagesDir = "images"
	// MasksDir holds one grayscale mask per image, matched by file name.
	MasksDir = "masks"
)

// Sample is an image file paired with its mask file.
type Sample struct {
	Name  string
	Image string
	Mask  string
}

// ListDirectory pairs every image under dir/images with the mask of the same
// name under dir/masks.
//
// Arguments:
//   - dir: The split directory.
//
// Returns:
//   - []Sample: Pairs sorted by file name.
//   - error: An error if a directory cannot be read or a mask is missing.
func ListDirectory(dir string) ([]Sample, error) {
	files, err := os.ReadDir(filepath.Join(dir, ImagesDir))
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if _, ok := images.FormatOf(file.Name()); ok {
			mask := filepath.Join(dir, MasksDir, file.Name())
			if _, err := os.Stat(mask); err != nil {
				return nil, errors.Wrapf(err, "mask for %s", file.Name())
			}
			samples = append(samples, Sample{
				Name:  file.Name(),
				Image: filepath.Join(dir, ImagesDir, file.Name()),
				Mask:  mask,
			})
		}
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Name < samples[j].Name
	})
	return samples, nil
}

// LoadDirectory reads a split into fixed-size batches at the stored image
// size. Images are scaled to [0,1]; mask pixels above 127 become 1. A trailing
// partial batch is dropped because the classifier graph has a fixed batch
// dimension.
func LoadDirectory(dir string, batchSize int) (SliceLoader, error) {
	return LoadResized(dir, batchSize, 0, 0)
}

// LoadResized is LoadDirectory with every image and mask resized to
// width×height. Non-positive dimensions keep the stored size.
func LoadResized(dir string, batchSize, width, height int) (SliceLoader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("invalid batch size %d", batchSize)
	}
	samples, err := ListDirectory(dir)
	if err != nil {
		return nil, err
	}

	var loader SliceLoader
	for start := 0; start+batchSize <= len(samples); start += batchSize {
		b, err := readBatch(samples[start:start+batchSize], width, height)
		if err != nil {
			return nil, err
		}
		loader = append(loader, b)
	}
	return loader, nil
}

func readBatch(samples []Sample, width, height int) (Batch, error) {
	var rows, cols int
	var imgs, masks []float32
	for _, s := range samples {
		img, err := images.Read(s.Image, gocv.IMReadColor, width, height)
		if err != nil {
			return Batch{}, err
		}
		mask, err := images.Read(s.Mask, gocv.IMReadGrayScale, width, height)
		if err != nil {
			img.Close()
			return Batch{}, err
		}
		if rows == 0 {
			rows, cols = img.Rows(), img.Cols()
		}
		if img.Rows() != rows || img.Cols() != cols || mask.Rows() != rows || mask.Cols() != cols {
			img.Close()
			mask.Close()
			return Batch{}, errors.Errorf("%s is %dx%d, want %dx%d", s.Name, img.Rows(), img.Cols(), rows, cols)
		}
		imgs = append(imgs, channelFirst(img)...)
		masks = append(masks, binary(mask)...)
		img.Close()
		mask.Close()
	}

	n := len(samples)
	return Batch{
		Images: tensor.New(tensor.WithShape(n, 3, rows, cols), tensor.WithBacking(imgs)),
		Labels: tensor.New(tensor.WithShape(n, 1, rows, cols), tensor.WithBacking(masks)),
	}, nil
}

// channelFirst converts an 8-bit BGR Mat to RGB planes in [0,1].
func channelFirst(m gocv.Mat) []float32 {
	rows, cols := m.Rows(), m.Cols()
	plane := rows * cols
	out := make([]float32, 3*plane)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			i := row*cols + col
			out[2*plane+i] = float32(m.GetUCharAt(row, col*3)) / 255
			out[plane+i] = float32(m.GetUCharAt(row, col*3+1)) / 255
			out[i] = float32(m.GetUCharAt(row, col*3+2)) / 255
		}
	}
	return out
}

func binary(m gocv.Mat) []float32 {
	rows, cols := m.Rows(), m.Cols()
	out := make([]float32, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			if m.GetUCharAt(row, col) > 127 {
				out[row*cols+col] = 1
			}
		}
	}
	return out
}
