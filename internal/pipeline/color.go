package pipeline

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	colorSampleStride = 4
	// Minimum max-min channel spread (8-bit) for a pixel to count as colored.
	// Grayscale scans rarely exceed single digits even with sensor noise.
	colorChannelDelta = 16
	// Fraction of sampled pixels that must be colored for the whole image to
	// be classified as color rather than black-and-grey.
	colorPixelFraction = 0.05
)

// AnalyzeColor classifies an image buffer as color or black-and-grey by
// sampling pixel saturation on a grid. Intended for the small thumbnail;
// callers treat failures as non-fatal and leave the flag unset.
func AnalyzeColor(data []byte) (bool, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	var sampled, colored int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += colorSampleStride {
		for x := bounds.Min.X; x < bounds.Max.X; x += colorSampleStride {
			r, g, b, _ := img.At(x, y).RGBA()
			r8, g8, b8 := int(r>>8), int(g>>8), int(b>>8)

			maxC := max(r8, max(g8, b8))
			minC := min(r8, min(g8, b8))
			if maxC-minC >= colorChannelDelta {
				colored++
			}
			sampled++
		}
	}

	if sampled == 0 {
		return false, fmt.Errorf("image has no pixels")
	}
	return float64(colored)/float64(sampled) >= colorPixelFraction, nil
}
