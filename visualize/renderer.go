// Package visualize - Overlays predicted and ground-truth foci on microscopy
// images for visual inspection during training.
//
// For every selected sample the renderer segments both masks into regions,
// reduces each region to a circle and draws the circles over the image:
//
//	image ──────────────────────────────┐
//	ground truth ─ watershed ─ extract ─┤
//	prediction ─ >0.5 ─ watershed ─ extract ─┴─ draw ─ hconcat ─ title ─ Sink
//
// Rendering is diagnostic. Callers are expected to log, not propagate, its
// errors.
package visualize

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/nvr-ai/go-foci/foci"
	"github.com/nvr-ai/go-foci/images"
	"github.com/nvr-ai/go-foci/segment"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

const (
	// DefaultPanels is the number of samples laid out side by side.
	DefaultPanels = 2
	// DefaultThreshold binarises predicted probabilities.
	DefaultThreshold = 0.5

	titleHeight = 24
)

// Renderer draws foci overlays and hands the composed figure to a Sink.
type Renderer struct {
	Segmenter segment.Segmenter
	Sink      Sink
	Palette   Palette
	// Threshold is the probability above which a predicted pixel is foreground.
	Threshold float32
	// Panels is the exact number of qualifying samples required; batches with
	// fewer are skipped.
	Panels int
}

// NewRenderer returns a Renderer with the watershed segmenter, the default
// palette and the given sink.
func NewRenderer(sink Sink) *Renderer {
	return &Renderer{
		Segmenter: segment.NewWatershed(),
		Sink:      sink,
		Palette:   DefaultPalette(),
		Threshold: DefaultThreshold,
		Panels:    DefaultPanels,
	}
}

// Select returns the indices of the first n samples whose ground truth has at
// least one positive pixel.
func Select(labels *tensor.Dense, n int) ([]int, error) {
	size, err := images.BatchSize(labels)
	if err != nil {
		return nil, err
	}
	var indices []int
	for i := 0; i < size && len(indices) < n; i++ {
		s, err := images.At(labels, i)
		if err != nil {
			return nil, err
		}
		if s.Any() {
			indices = append(indices, i)
		}
	}
	return indices, nil
}

// Render overlays predicted and ground-truth foci for up to Panels samples and
// emits the figure to path.
//
// Arguments:
//   - imgs: (N,3,H,W) RGB images with values in [0,1].
//   - labels: (N,1,H,W) ground-truth masks.
//   - preds: (N,1,H,W) predicted probabilities.
//   - path: Where the Sink should persist the figure.
//   - epoch: The training epoch shown in the title.
//
// Returns:
//   - error: An error if the tensors are malformed or drawing fails. When fewer
//     than Panels samples contain ground-truth foci nothing is emitted and the
//     error is nil.
func (r *Renderer) Render(imgs, labels, preds *tensor.Dense, path string, epoch int) error {
	panels := r.Panels
	if panels <= 0 {
		panels = DefaultPanels
	}
	indices, err := Select(labels, panels)
	if err != nil {
		return errors.Wrap(err, "selecting samples")
	}
	if len(indices) < panels {
		return nil
	}

	mats := make([]gocv.Mat, 0, len(indices))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	for _, i := range indices {
		panel, err := r.panel(imgs, labels, preds, i)
		if err != nil {
			return errors.Wrapf(err, "rendering sample %d", i)
		}
		mats = append(mats, panel)
	}

	figure := compose(mats)
	defer figure.Close()
	titled := r.title(figure, epoch)
	defer titled.Close()

	return r.Sink.Emit(path, titled)
}

// panel draws the overlay for sample i.
func (r *Renderer) panel(imgs, labels, preds *tensor.Dense, i int) (gocv.Mat, error) {
	img, err := images.At(imgs, i)
	if err != nil {
		return gocv.Mat{}, err
	}
	truth, err := images.At(labels, i)
	if err != nil {
		return gocv.Mat{}, err
	}
	pred, err := images.At(preds, i)
	if err != nil {
		return gocv.Mat{}, err
	}

	truthFoci, err := r.extract(truth, images.Truncated)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "ground truth")
	}
	predFoci, err := r.extract(pred, images.Above(r.Threshold))
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "prediction")
	}

	mat, err := images.ToBGR(img)
	if err != nil {
		return gocv.Mat{}, err
	}
	Draw(&mat, predFoci, rgba(r.Palette.Pred))
	Draw(&mat, truthFoci, rgba(r.Palette.Truth))
	return mat, nil
}

// extract segments the first channel of s and extracts its circles.
func (r *Renderer) extract(s images.Sample, keep func(float32) bool) ([]foci.Descriptor, error) {
	mask, err := images.Binarize(s, 0, keep)
	if err != nil {
		return nil, err
	}
	regions, err := r.Segmenter.Segment(mask)
	if err != nil {
		return nil, err
	}
	return foci.Extract(regions), nil
}

// Draw outlines each descriptor as a one-pixel circle. Coordinates and radii
// are rounded half to even.
func Draw(mat *gocv.Mat, descriptors []foci.Descriptor, c color.RGBA) {
	for _, d := range descriptors {
		center := image.Pt(round(d.Col), round(d.Row))
		gocv.Circle(mat, center, round(d.Radius), c, 1)
	}
}

func round(v float32) int {
	return int(math.RoundToEven(float64(v)))
}

// compose lays the panels out side by side.
func compose(panels []gocv.Mat) gocv.Mat {
	figure := panels[0].Clone()
	for _, p := range panels[1:] {
		next := gocv.NewMat()
		gocv.Hconcat(figure, p, &next)
		figure.Close()
		figure = next
	}
	return figure
}

// title adds a white strip above the figure with the epoch and the legend.
func (r *Renderer) title(figure gocv.Mat, epoch int) gocv.Mat {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 0}
	out := gocv.NewMat()
	gocv.CopyMakeBorder(figure, &out, titleHeight, 0, 0, 0, gocv.BorderConstant, white)
	text := fmt.Sprintf("Epoch %d, %s = true label", epoch, r.Palette.TruthName)
	gocv.PutText(&out, text, image.Pt(4, titleHeight-8), gocv.FontHersheyPlain, 1, color.RGBA{A: 0}, 1)
	return out
}
