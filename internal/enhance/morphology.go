package enhance

import "image"

// open performs a morphological opening (erosion then dilation) with a
// size×size square. A size of 1 returns an unchanged copy.
func open(binary *image.Gray, size int) *image.Gray {
	if size <= 1 {
		out := image.NewGray(binary.Rect)
		copy(out.Pix, binary.Pix)
		return out
	}
	return morph(morph(binary, size, minOf), size, maxOf)
}

func minOf(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

func maxOf(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// morph applies pick over every size×size window. Neighbors outside the image
// are ignored.
func morph(src *image.Gray, size int, pick func(a, b uint8) uint8) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	before := (size - 1) / 2
	after := size - 1 - before

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := src.Pix[y*src.Stride+x]
			for ny := max(0, y-before); ny <= min(h-1, y+after); ny++ {
				for nx := max(0, x-before); nx <= min(w-1, x+after); nx++ {
					v = pick(v, src.Pix[ny*src.Stride+nx])
				}
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}
