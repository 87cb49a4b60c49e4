package enhance

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// smoothKernel is the 3x3 smoothing filter used as the blurred reference
// for sharpening.
var smoothKernel = [9]float64{
	1, 1, 1,
	1, 5, 1,
	1, 1, 1,
}

// adjustContrast scales every channel away from the mean luminance
func adjustContrast(img *image.NRGBA, factor float64) (*image.NRGBA, error) {
	if len(img.Pix) == 0 {
		return nil, errors.New("empty image")
	}

	luma := make([]float64, 0, len(img.Pix)/4)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		r, g, b := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
		luma = append(luma, 0.299*r+0.587*g+0.114*b)
	}
	mean := math.Round(stat.Mean(luma, nil))

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: blendChannel(mean, float64(c.R), factor),
			G: blendChannel(mean, float64(c.G), factor),
			B: blendChannel(mean, float64(c.B), factor),
			A: c.A,
		}
	}), nil
}

// adjustSharpness extrapolates away from a smoothed copy of img. Edge pixels
// of the smoothed copy are taken from img, so borders are left as they are.
func adjustSharpness(img *image.NRGBA, factor float64) (*image.NRGBA, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}

	smooth := imaging.Convolve3x3(img, smoothKernel, &imaging.ConvolveOptions{Normalize: true})
	if smooth.Rect.Dx() != w || smooth.Rect.Dy() != h {
		return nil, errors.New("smoothing changed the image size")
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			j := y*smooth.Stride + x*4
			k := y*out.Stride + x*4
			edge := x == 0 || y == 0 || x == w-1 || y == h-1
			for c := 0; c < 3; c++ {
				v := float64(img.Pix[i+c])
				base := v
				if !edge {
					base = float64(smooth.Pix[j+c])
				}
				out.Pix[k+c] = blendChannel(base, v, factor)
			}
			out.Pix[k+3] = img.Pix[i+3]
		}
	}
	return out, nil
}

// blendChannel returns base + factor*(v-base) clamped to a byte
func blendChannel(base, v, factor float64) uint8 {
	r := base + factor*(v-base)
	if r <= 0 {
		return 0
	}
	if r >= 255 {
		return 255
	}
	return uint8(r + 0.5)
}
