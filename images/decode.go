package images

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Format represents a supported encoded image format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

var extensions = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".webp": FormatWebP,
	".png":  FormatPNG,
	".bmp":  FormatBMP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
}

// FormatOf infers the format of a file from its extension.
func FormatOf(path string) (Format, bool) {
	f, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// Decode decodes an encoded image into an 8-bit Mat.
//
// Arguments:
//   - data: The encoded bytes.
//   - format: The encoding of data.
//   - flag: gocv.IMReadColor for BGR output or gocv.IMReadGrayScale for one channel.
//
// Returns:
//   - gocv.Mat: The decoded image. The caller must Close it.
//   - error: An error if data is empty or cannot be decoded.
func Decode(data []byte, format Format, flag gocv.IMReadFlag) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), errors.New("empty image data")
	}
	if format != FormatWebP {
		mat, err := gocv.IMDecode(data, flag)
		if err != nil || mat.Empty() {
			mat.Close()
			return gocv.NewMat(), errors.Errorf("failed to decode %s image", format)
		}
		return mat, nil
	}

	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "failed to decode webp image")
	}
	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "failed to convert webp image")
	}
	if flag != gocv.IMReadGrayScale {
		return bgr, nil
	}
	defer bgr.Close()
	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray, nil
}

// Read loads the image at path and resizes it to width×height when both are
// positive. Grayscale reads are resized with nearest-neighbour interpolation
// so binary masks stay binary.
func Read(path string, flag gocv.IMReadFlag, width, height int) (gocv.Mat, error) {
	format, ok := FormatOf(path)
	if !ok {
		return gocv.NewMat(), errors.Errorf("unsupported image format: %s", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return gocv.NewMat(), errors.Wrapf(err, "reading %s", path)
	}
	mat, err := Decode(data, format, flag)
	if err != nil {
		return mat, errors.Wrap(err, path)
	}
	if width <= 0 || height <= 0 || (mat.Cols() == width && mat.Rows() == height) {
		return mat, nil
	}

	interp := gocv.InterpolationArea
	if flag == gocv.IMReadGrayScale {
		interp = gocv.InterpolationNearestNeighbor
	}
	resized := gocv.NewMat()
	gocv.Resize(mat, &resized, image.Pt(width, height), 0, 0, interp)
	mat.Close()
	return resized, nil
}
