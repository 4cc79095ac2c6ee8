// Package foci - Region maps, masks and focus descriptors.
//
// A focus is a small, roughly circular spot in a microscopy image. The
// segmentation stage produces a RegionMap where every connected focus carries
// its own positive label; Extract condenses that map into one circle per label
// so the circles can be drawn over the source image.
package foci

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Mask is a single-channel binary grid stored row-major. Any non-zero pixel is
// foreground.
type Mask struct {
	Rows int
	Cols int
	Pix  []uint8
}

// NewMask allocates an all-background mask.
func NewMask(rows, cols int) Mask {
	return Mask{Rows: rows, Cols: cols, Pix: make([]uint8, rows*cols)}
}

// At returns the mask value at (row, col).
func (m Mask) At(row, col int) uint8 {
	return m.Pix[row*m.Cols+col]
}

// Set assigns the mask value at (row, col).
func (m Mask) Set(row, col int, v uint8) {
	m.Pix[row*m.Cols+col] = v
}

// Empty reports whether the mask has no foreground pixel.
func (m Mask) Empty() bool {
	for _, v := range m.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (m Mask) Validate() error {
	if m.Rows <= 0 || m.Cols <= 0 {
		return errors.Errorf("invalid mask dimensions %dx%d", m.Rows, m.Cols)
	}
	if len(m.Pix) != m.Rows*m.Cols {
		return errors.Errorf("mask buffer holds %d pixels, want %d", len(m.Pix), m.Rows*m.Cols)
	}
	return nil
}

// RegionMap is a labeled grid: 0 is background and every positive value
// identifies one region.
type RegionMap struct {
	Rows   int
	Cols   int
	Labels []int32
}

// NewRegionMap allocates an all-background region map.
func NewRegionMap(rows, cols int) RegionMap {
	return RegionMap{Rows: rows, Cols: cols, Labels: make([]int32, rows*cols)}
}

// At returns the label at (row, col).
func (m RegionMap) At(row, col int) int32 {
	return m.Labels[row*m.Cols+col]
}

// Set assigns the label at (row, col).
func (m RegionMap) Set(row, col int, v int32) {
	m.Labels[row*m.Cols+col] = v
}

// Values returns the distinct positive labels in ascending order.
func (m RegionMap) Values() []int32 {
	seen := make(map[int32]struct{})
	for _, v := range m.Labels {
		if v > 0 {
			seen[v] = struct{}{}
		}
	}
	values := make([]int32, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values
}

// Descriptor summarises one labeled region as a circle.
type Descriptor struct {
	// Row and Col are the mean pixel coordinates of the region.
	Row float32
	Col float32
	// Radius is half the diagonal of the region's bounding box.
	Radius float32
}

// bounds accumulates the coordinates of one label while scanning the map.
type bounds struct {
	sumRow, sumCol float64
	count          int
	minRow, maxRow int
	minCol, maxCol int
}

func (b *bounds) add(row, col int) {
	if b.count == 0 {
		b.minRow, b.maxRow = row, row
		b.minCol, b.maxCol = col, col
	}
	b.sumRow += float64(row)
	b.sumCol += float64(col)
	b.count++
	b.minRow = min(b.minRow, row)
	b.maxRow = max(b.maxRow, row)
	b.minCol = min(b.minCol, col)
	b.maxCol = max(b.maxCol, col)
}

// Extract converts a region map into one Descriptor per positive label.
//
// The center is the mean of the member coordinates. The radius is half the
// Euclidean length of the bounding box diagonal,
//
//	r = sqrt((maxRow-minRow)² + (maxCol-minCol)²) / 2
//
// which approximates, and is not, the minimum enclosing circle. Regions whose
// radius is zero (a single pixel) are dropped.
//
// Arguments:
//   - m: The labeled region map.
//
// Returns:
//   - []Descriptor: One circle per surviving label, in ascending label order.
//     The slice is empty when the map holds no positive label.
func Extract(m RegionMap) []Descriptor {
	regions := make(map[int32]*bounds)
	for row := 0; row < m.Rows; row++ {
		for col := 0; col < m.Cols; col++ {
			v := m.At(row, col)
			if v <= 0 {
				continue
			}
			b, ok := regions[v]
			if !ok {
				b = &bounds{}
				regions[v] = b
			}
			b.add(row, col)
		}
	}

	descriptors := make([]Descriptor, 0, len(regions))
	for _, v := range m.Values() {
		b := regions[v]
		dr := float32(b.maxRow - b.minRow)
		dc := float32(b.maxCol - b.minCol)
		r := math32.Sqrt(dr*dr+dc*dc) / 2
		if r <= 0 {
			continue
		}
		descriptors = append(descriptors, Descriptor{
			Row:    float32(b.sumRow / float64(b.count)),
			Col:    float32(b.sumCol / float64(b.count)),
			Radius: r,
		})
	}
	return descriptors
}
