package pipeline_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"inkdex-backend/internal/pipeline"
)

func encodeTestImage(t *testing.T, width, height int, fill color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestTranscode_ProducesAllFourVariants(t *testing.T) {
	tr := pipeline.NewTranscoder()
	source := encodeTestImage(t, 2500, 1000, color.RGBA{R: 200, G: 40, B: 40, A: 255})

	variants, err := tr.Transcode(source)
	require.NoError(t, err)

	assert.NotEmpty(t, variants.Display)
	assert.NotEmpty(t, variants.Thumb320)
	assert.NotEmpty(t, variants.Thumb640)
	assert.NotEmpty(t, variants.Thumb1280)

	// Display is bounded to 2048 on the long edge, aspect ratio preserved.
	w, h := jpegSize(t, variants.Display)
	assert.Equal(t, 2048, w)
	assert.Equal(t, 819, h)

	w, _ = jpegSize(t, variants.Thumb320)
	assert.Equal(t, 320, w)
	w, _ = jpegSize(t, variants.Thumb640)
	assert.Equal(t, 640, w)
	w, _ = jpegSize(t, variants.Thumb1280)
	assert.Equal(t, 1280, w)
}

func TestTranscode_NeverUpscales(t *testing.T) {
	tr := pipeline.NewTranscoder()
	source := encodeTestImage(t, 300, 150, color.RGBA{R: 10, G: 120, B: 200, A: 255})

	variants, err := tr.Transcode(source)
	require.NoError(t, err)

	// A 300px-wide source stays at 300px everywhere: the display rendition
	// and every thumbnail keep the native resolution.
	w, h := jpegSize(t, variants.Display)
	assert.Equal(t, 300, w)
	assert.Equal(t, 150, h)

	for _, thumb := range [][]byte{variants.Thumb320, variants.Thumb640, variants.Thumb1280} {
		w, h := jpegSize(t, thumb)
		assert.Equal(t, 300, w)
		assert.Equal(t, 150, h)
	}
}

func TestTranscode_RejectsNonImageData(t *testing.T) {
	tr := pipeline.NewTranscoder()

	_, err := tr.Transcode([]byte("definitely not an image"))
	assert.Error(t, err)
}
