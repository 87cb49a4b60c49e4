// Package enhance prepares receipt photos for a vision model: text is
// separated from the background with an adaptive threshold and the result is
// boosted so it still looks like a natural image.
package enhance

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Normalizer runs the enhancement pipeline. It only holds immutable options
// and can be shared between requests.
type Normalizer struct {
	opts Options
}

// New creates a Normalizer with the given options
func New(opts Options) (*Normalizer, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid enhance options: %w", err)
	}
	return &Normalizer{opts: opts}, nil
}

// Options returns the options the Normalizer was built with
func (n *Normalizer) Options() Options {
	return n.opts
}

// Normalize decodes raw image bytes and enhances them
func (n *Normalizer) Normalize(data []byte, contentType string) (*image.NRGBA, error) {
	src, err := Decode(data, contentType)
	if err != nil {
		return nil, err
	}
	return n.NormalizeImage(src)
}

// NormalizeImage enhances a decoded image. The result always has the width
// and height of src.
func (n *Normalizer) NormalizeImage(src image.Image) (*image.NRGBA, error) {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, &ProcessingError{Step: "decode", Err: errors.New("image has no pixels")}
	}

	gray := toGray(src)

	binary := adaptiveThreshold(gray, n.opts.BlockSize, n.opts.Offset)

	opened := open(binary, n.opts.OpeningKernel)

	rgb := imaging.Clone(opened)

	contrasted, err := adjustContrast(rgb, n.opts.Contrast)
	if err != nil {
		return nil, &ProcessingError{Step: "contrast", Err: err}
	}

	sharpened, err := adjustSharpness(contrasted, n.opts.Sharpness)
	if err != nil {
		return nil, &ProcessingError{Step: "sharpness", Err: err}
	}

	b := sharpened.Bounds()
	if b.Dx() != width || b.Dy() != height {
		sharpened = imaging.Resize(sharpened, width, height, imaging.Lanczos)
	}
	return sharpened, nil
}

// toGray converts any image into an origin-anchored grayscale matrix
func toGray(src image.Image) *image.Gray {
	g := imaging.Grayscale(src)
	b := g.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for i, j := 0, 0; i < len(gray.Pix); i, j = i+1, j+4 {
		gray.Pix[i] = g.Pix[j]
	}
	return gray
}
