package data

import (
	"image"
	_ "image/jpeg" // Registers JPEG format
	_ "image/png"
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// ConvertImage loads an image of any size, scales it to w x h and returns one
// grayscale byte per pixel in row-major order. With invert set, dark pixels
// become bright, matching MNIST's light-on-dark digits.
func ConvertImage(path string, w, h int, invert bool) ([]byte, error) {
	if w <= 0 || h <= 0 {
		return nil, errors.Wrapf(ErrSizeMismatch, "target size %dx%d", w, h)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}

	// Resize to the network's input grid.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), draw.Over, nil)

	out := make([]byte, w*h)
	for i := range out {
		px := dst.Pix[i*4 : i*4+3]
		v := luma(px[0], px[1], px[2])
		if invert {
			v = 255 - v
		}
		out[i] = v
	}
	return out, nil
}

// luma is the ITU-R 601 weighted gray level, rounded and clamped to a byte.
func luma(r, g, b uint8) uint8 {
	y := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	return uint8(math.Min(255, math.Round(y)))
}
