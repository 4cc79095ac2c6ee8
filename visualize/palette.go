package visualize

import (
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Palette holds the overlay colors. Predictions are drawn first, ground truth
// last so it stays visible where circles overlap.
type Palette struct {
	Pred      colorful.Color
	Truth     colorful.Color
	TruthName string
}

// DefaultPalette draws predictions in magenta and ground truth in green.
func DefaultPalette() Palette {
	return Palette{
		Pred:      colorful.Color{R: 1, G: 0, B: 1},
		Truth:     colorful.Color{R: 0, G: 1, B: 0},
		TruthName: "Green",
	}
}

// ParsePalette builds a palette from hex colors such as "#ff00ff". Empty
// strings keep the default color.
func ParsePalette(pred, truth, truthName string) (Palette, error) {
	p := DefaultPalette()
	if pred != "" {
		c, err := colorful.Hex(pred)
		if err != nil {
			return Palette{}, errors.Wrapf(err, "parsing prediction color %q", pred)
		}
		p.Pred = c
	}
	if truth != "" {
		c, err := colorful.Hex(truth)
		if err != nil {
			return Palette{}, errors.Wrapf(err, "parsing ground truth color %q", truth)
		}
		p.Truth = c
	}
	if truthName != "" {
		p.TruthName = truthName
	}
	return p, nil
}

func rgba(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0}
}
