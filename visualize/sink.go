package visualize

import (
	"image/png"
	"os"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Sink receives a composed figure. It either persists it under path or shows
// it.
type Sink interface {
	Emit(path string, figure gocv.Mat) error
}

// FileSink writes figures as PNG files, overwriting any previous file.
type FileSink struct {
	// Scale enlarges the figure by an integer factor with nearest-neighbour
	// sampling so thin circles survive image viewers. Values below 2 write the
	// figure unscaled.
	Scale int
}

// Emit encodes the figure and writes it to path.
func (s FileSink) Emit(path string, figure gocv.Mat) error {
	img, err := figure.ToImage()
	if err != nil {
		return errors.Wrap(err, "converting figure to image")
	}
	if s.Scale > 1 {
		b := img.Bounds()
		img = resize.Resize(uint(b.Dx()*s.Scale), uint(b.Dy()*s.Scale), img, resize.NearestNeighbor)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

// WindowSink shows figures in an OpenCV window and blocks until a key is
// pressed.
type WindowSink struct {
	Title string
}

// Emit displays the figure. path is only used as the window title fallback.
func (s WindowSink) Emit(path string, figure gocv.Mat) error {
	title := s.Title
	if title == "" {
		title = path
	}
	window := gocv.NewWindow(title)
	defer window.Close()
	window.IMShow(figure)
	window.WaitKey(0)
	return nil
}

// NopSink discards figures.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(string, gocv.Mat) error { return nil }
