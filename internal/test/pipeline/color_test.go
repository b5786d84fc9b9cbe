package pipeline_test

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"inkdex-backend/internal/pipeline"
)

func TestAnalyzeColor_ColoredImage(t *testing.T) {
	data := encodeTestImage(t, 200, 200, color.RGBA{R: 220, G: 40, B: 30, A: 255})

	isColor, err := pipeline.AnalyzeColor(data)
	require.NoError(t, err)
	assert.True(t, isColor)
}

func TestAnalyzeColor_GrayscaleImage(t *testing.T) {
	data := encodeTestImage(t, 200, 200, color.RGBA{R: 120, G: 120, B: 120, A: 255})

	isColor, err := pipeline.AnalyzeColor(data)
	require.NoError(t, err)
	assert.False(t, isColor)
}

func TestAnalyzeColor_InvalidData(t *testing.T) {
	_, err := pipeline.AnalyzeColor([]byte("not an image"))
	assert.Error(t, err)
}
