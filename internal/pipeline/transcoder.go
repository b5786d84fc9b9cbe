package pipeline

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

const (
	displayMaxDim  = 2048
	displayQuality = 90
	thumbQuality   = 85
)

var thumbWidths = [3]int{320, 640, 1280}

// Variants holds the four derived buffers for one source image: a bounded,
// quality-optimized display rendition plus three fixed-width thumbnails.
type Variants struct {
	Display   []byte
	Thumb320  []byte
	Thumb640  []byte
	Thumb1280 []byte
}

type Transcoder struct{}

func NewTranscoder() *Transcoder {
	return &Transcoder{}
}

// Transcode decodes the source and produces all four variants. Thumbnails are
// generated concurrently; if any single variant fails the whole image is
// aborted so no partial set ever reaches storage.
func (t *Transcoder) Transcode(data []byte) (*Variants, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	display, err := encodeJPEG(fitWithin(src, displayMaxDim), displayQuality)
	if err != nil {
		return nil, fmt.Errorf("display variant: %w", err)
	}

	thumbs := make([][]byte, len(thumbWidths))
	var g errgroup.Group
	for i, width := range thumbWidths {
		g.Go(func() error {
			buf, err := encodeJPEG(resizeToWidth(src, width), thumbQuality)
			if err != nil {
				return fmt.Errorf("thumbnail %d: %w", width, err)
			}
			thumbs[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Variants{
		Display:   display,
		Thumb320:  thumbs[0],
		Thumb640:  thumbs[1],
		Thumb1280: thumbs[2],
	}, nil
}

// fitWithin bounds both dimensions to maxDim, preserving aspect ratio and
// never upscaling beyond the source resolution.
func fitWithin(src image.Image, maxDim int) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() <= maxDim && bounds.Dy() <= maxDim {
		return src
	}
	return imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)
}

// resizeToWidth scales to the target width, preserving aspect ratio. Sources
// narrower than the target are left at native resolution.
func resizeToWidth(src image.Image, width int) image.Image {
	if src.Bounds().Dx() <= width {
		return src
	}
	return imaging.Resize(src, width, 0, imaging.Lanczos)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
