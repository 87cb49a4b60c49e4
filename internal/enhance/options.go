package enhance

import "fmt"

// Options holds the tuning constants of the enhancement pipeline
type Options struct {
	// BlockSize is the side of the square neighborhood used by the
	// adaptive threshold. Must be odd.
	BlockSize int
	// Offset is subtracted from the neighborhood mean before comparing.
	Offset float64
	// OpeningKernel is the side of the square structuring element used for
	// the morphological opening. 1 leaves the binary image untouched.
	OpeningKernel int
	// Contrast and Sharpness are enhancement factors; 1 keeps the image.
	Contrast  float64
	Sharpness float64
}

// DefaultOptions returns the constants the pipeline was tuned with
func DefaultOptions() Options {
	return Options{
		BlockSize:     21,
		Offset:        10,
		OpeningKernel: 1,
		Contrast:      2.0,
		Sharpness:     2.0,
	}
}

func (o Options) validate() error {
	if o.BlockSize < 3 || o.BlockSize%2 == 0 {
		return fmt.Errorf("block size must be an odd number >= 3, got %d", o.BlockSize)
	}
	if o.OpeningKernel < 1 {
		return fmt.Errorf("opening kernel must be >= 1, got %d", o.OpeningKernel)
	}
	if o.Contrast < 0 {
		return fmt.Errorf("contrast factor must not be negative, got %g", o.Contrast)
	}
	if o.Sharpness < 0 {
		return fmt.Errorf("sharpness factor must not be negative, got %g", o.Sharpness)
	}
	return nil
}
