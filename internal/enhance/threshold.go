package enhance

import (
	"image"
	"math"
)

// gaussianKernel returns a normalized 1D kernel of the given odd size. The
// sigma follows the usual rule for deriving it from the kernel size.
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	kernel := make([]float64, size)
	half := size / 2
	var sum float64
	for i := range kernel {
		x := float64(i - half)
		kernel[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// gaussianMean computes the Gaussian-weighted neighborhood mean of every
// pixel. Borders replicate the edge pixels.
func gaussianMean(gray *image.Gray, size int) []float64 {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	kernel := gaussianKernel(size)
	half := size / 2

	horizontal := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * float64(row[clamp(x+k-half, 0, w-1)])
			}
			horizontal[y*w+x] = acc
		}
	}

	mean := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * horizontal[clamp(y+k-half, 0, h-1)*w+x]
			}
			mean[y*w+x] = acc
		}
	}
	return mean
}

// adaptiveThreshold binarizes gray: a pixel turns white when it is brighter
// than its neighborhood mean minus offset, black otherwise.
func adaptiveThreshold(gray *image.Gray, blockSize int, offset float64) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	mean := gaussianMean(gray, blockSize)

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(gray.Pix[y*gray.Stride+x])
			if v-math.Round(mean[y*w+x]) > -offset {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
