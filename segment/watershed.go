// Package segment - Splits binary foci masks into labeled regions using OpenCV
// (via gocv).
//
// The Watershed segmenter follows the usual distance-transform recipe:
//
//	┌──────────────┐
//	│ Binary mask  │
//	└──────┬───────┘
//	┌──────────────────────────────┐
//	│ Euclidean distance transform │
//	└──────┬───────────────────────┘
//	┌──────────────────────────────┐
//	│ 3×3 local maxima (dilation)  │
//	└──────┬───────────────────────┘
//	┌──────────────────────────────┐
//	│ Marker labeling              │
//	└──────┬───────────────────────┘
//	┌──────────────────────────────┐
//	│ Watershed flood, per region  │
//	└──────┬───────────────────────┘
//	┌──────────────────────────────┐
//	│ foci.RegionMap               │
//	└──────────────────────────────┘
//
// Touching foci that form a single connected blob are separated along the
// valley of the distance map; isolated foci keep their own marker label.
package segment

import (
	"image"

	"github.com/nvr-ai/go-foci/foci"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Segmenter turns a binary mask into a labeled region map.
type Segmenter interface {
	Segment(mask foci.Mask) (foci.RegionMap, error)
}

// Watershed is a Segmenter seeded by the local maxima of the distance
// transform.
type Watershed struct {
	// Footprint is the side of the square neighbourhood used to find local
	// maxima. Zero means 3.
	Footprint int
}

// NewWatershed returns a Watershed segmenter with a 3×3 footprint.
func NewWatershed() *Watershed {
	return &Watershed{Footprint: 3}
}

// Segment labels every foreground pixel of the mask.
//
// Arguments:
//   - mask: The binary mask; non-zero pixels are foreground.
//
// Returns:
//   - foci.RegionMap: Background stays 0, each watershed basin gets a unique
//     positive label.
//   - error: An error if the mask is malformed or OpenCV fails.
func (w *Watershed) Segment(mask foci.Mask) (foci.RegionMap, error) {
	if err := mask.Validate(); err != nil {
		return foci.RegionMap{}, errors.Wrap(err, "invalid mask")
	}
	out := foci.NewRegionMap(mask.Rows, mask.Cols)
	if mask.Empty() {
		return out, nil
	}

	binary := toMat(mask)
	defer binary.Close()

	dist := gocv.NewMat()
	defer dist.Close()
	distLabels := gocv.NewMat()
	defer distLabels.Close()
	gocv.DistanceTransform(binary, &dist, &distLabels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	peaks, err := w.localMaxima(mask, dist)
	if err != nil {
		return foci.RegionMap{}, err
	}
	defer peaks.Close()

	markers := label(peaks)
	defer markers.Close()

	components := label(binary)
	defer components.Close()

	groups := groupMarkers(mask, markers, components)

	var flooded gocv.Mat
	for _, g := range groups {
		if len(g.labels) > 1 {
			if flooded, err = flood(dist, markers); err != nil {
				return foci.RegionMap{}, err
			}
			defer flooded.Close()
			break
		}
	}

	for row := 0; row < mask.Rows; row++ {
		for col := 0; col < mask.Cols; col++ {
			if mask.At(row, col) == 0 {
				continue
			}
			g := groups[components.GetIntAt(row, col)]
			switch len(g.labels) {
			case 0:
				continue
			case 1:
				out.Set(row, col, g.labels[0])
			default:
				label := flooded.GetIntAt(row, col)
				if !g.owns(label) {
					label = g.nearest(row, col)
				}
				out.Set(row, col, label)
			}
		}
	}
	return out, nil
}

// localMaxima marks foreground pixels whose distance equals the maximum over
// the footprint around them.
func (w *Watershed) localMaxima(mask foci.Mask, dist gocv.Mat) (gocv.Mat, error) {
	size := w.Footprint
	if size <= 0 {
		size = 3
	}
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(size, size))
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	if err := gocv.Dilate(dist, &dilated, kernel); err != nil {
		return gocv.Mat{}, errors.Wrap(err, "dilating distance map")
	}

	peaks := gocv.NewMatWithSize(mask.Rows, mask.Cols, gocv.MatTypeCV8U)
	for row := 0; row < mask.Rows; row++ {
		for col := 0; col < mask.Cols; col++ {
			v := dist.GetFloatAt(row, col)
			var p uint8
			if mask.At(row, col) != 0 && v > 0 && v >= dilated.GetFloatAt(row, col) {
				p = 255
			}
			peaks.SetUCharAt(row, col, p)
		}
	}
	return peaks, nil
}

// flood runs the OpenCV watershed over the inverted distance map so basins
// grow outward from the markers.
func flood(dist, markers gocv.Mat) (gocv.Mat, error) {
	rows, cols := dist.Rows(), dist.Cols()
	var peak float32
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			peak = max(peak, dist.GetFloatAt(row, col))
		}
	}
	if peak <= 0 {
		return gocv.Mat{}, errors.New("distance map has no foreground")
	}

	relief := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	defer relief.Close()
	basins := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32S)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			v := uint8(255 - dist.GetFloatAt(row, col)/peak*255)
			for ch := 0; ch < 3; ch++ {
				relief.SetUCharAt(row, col*3+ch, v)
			}
			basins.SetIntAt(row, col, markers.GetIntAt(row, col))
		}
	}
	gocv.Watershed(relief, &basins)
	return basins, nil
}

// label numbers the 4-connected foreground components of src from 1, with 0
// for background, into a CV_32S Mat.
func label(src gocv.Mat) gocv.Mat {
	labels := gocv.NewMat()
	gocv.ConnectedComponentsWithParams(src, &labels, 4, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)
	return labels
}

type marker struct {
	label    int32
	row, col int
}

// group collects the marker pixels that fall inside one connected mask
// component.
type group struct {
	labels []int32
	pixels []marker
}

func (g *group) add(m marker) {
	g.pixels = append(g.pixels, m)
	if !g.owns(m.label) {
		g.labels = append(g.labels, m.label)
	}
}

func (g *group) owns(label int32) bool {
	for _, l := range g.labels {
		if l == label {
			return true
		}
	}
	return false
}

// nearest returns the label of the closest marker pixel of the group.
func (g *group) nearest(row, col int) int32 {
	best := g.pixels[0].label
	bestDist := -1
	for _, m := range g.pixels {
		dr, dc := m.row-row, m.col-col
		d := dr*dr + dc*dc
		if bestDist < 0 || d < bestDist {
			best, bestDist = m.label, d
		}
	}
	return best
}

// groupMarkers maps each mask component to the markers it contains.
func groupMarkers(mask foci.Mask, markers, components gocv.Mat) map[int32]*group {
	groups := make(map[int32]*group)
	for row := 0; row < mask.Rows; row++ {
		for col := 0; col < mask.Cols; col++ {
			if mask.At(row, col) == 0 {
				continue
			}
			c := components.GetIntAt(row, col)
			g, ok := groups[c]
			if !ok {
				g = &group{}
				groups[c] = g
			}
			if label := markers.GetIntAt(row, col); label > 0 {
				g.add(marker{label: label, row: row, col: col})
			}
		}
	}
	return groups
}

func toMat(mask foci.Mask) gocv.Mat {
	mat := gocv.NewMatWithSize(mask.Rows, mask.Cols, gocv.MatTypeCV8U)
	for row := 0; row < mask.Rows; row++ {
		for col := 0; col < mask.Cols; col++ {
			var v uint8
			if mask.At(row, col) != 0 {
				v = 255
			}
			mat.SetUCharAt(row, col, v)
		}
	}
	return mat
}
