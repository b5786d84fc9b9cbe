package pipeline_test

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"inkdex-backend/internal/models"
	"inkdex-backend/internal/pipeline"
)

func seed(name string, embedding []float32) models.StyleSeed {
	return models.StyleSeed{StyleName: name, Embedding: embedding}
}

func seedWithThreshold(name string, embedding []float32, threshold float64) models.StyleSeed {
	s := seed(name, embedding)
	s.ThresholdOverride = sql.NullFloat64{Float64: threshold, Valid: true}
	return s
}

func TestStyleMatcher_ExactThresholdIncluded(t *testing.T) {
	// Identical vectors give similarity exactly 1.0; an override of exactly
	// 1.0 must still include the style.
	m := pipeline.NewStyleMatcher([]models.StyleSeed{
		seedWithThreshold("traditional", []float32{1, 0}, 1.0),
	})

	predictions := m.Match([]float32{1, 0})
	require.Len(t, predictions, 1)
	assert.Equal(t, "traditional", predictions[0].StyleName)
	assert.True(t, predictions[0].IsPrimary)
}

func TestStyleMatcher_BelowThresholdExcluded(t *testing.T) {
	// Orthogonal vectors give similarity 0, below the default threshold.
	m := pipeline.NewStyleMatcher([]models.StyleSeed{
		seed("blackwork", []float32{0, 1}),
	})

	predictions := m.Match([]float32{1, 0})
	assert.Empty(t, predictions)
}

func TestStyleMatcher_TopThreeOfFiveSurvivors(t *testing.T) {
	// Five styles all pass their thresholds with strictly decreasing
	// similarity; only the best three survive and only the best is primary.
	seeds := []models.StyleSeed{
		seedWithThreshold("fifth", []float32{0.2, 1}, 0),
		seedWithThreshold("third", []float32{0.6, 1}, 0),
		seedWithThreshold("first", []float32{1, 0.1}, 0),
		seedWithThreshold("fourth", []float32{0.4, 1}, 0),
		seedWithThreshold("second", []float32{1, 0.8}, 0),
	}
	m := pipeline.NewStyleMatcher(seeds)

	predictions := m.Match([]float32{1, 0})
	require.Len(t, predictions, 3)
	assert.Equal(t, "first", predictions[0].StyleName)
	assert.Equal(t, "second", predictions[1].StyleName)
	assert.Equal(t, "third", predictions[2].StyleName)

	assert.True(t, predictions[0].IsPrimary)
	assert.False(t, predictions[1].IsPrimary)
	assert.False(t, predictions[2].IsPrimary)

	assert.Greater(t, predictions[0].Confidence, predictions[1].Confidence)
	assert.Greater(t, predictions[1].Confidence, predictions[2].Confidence)
}

func TestStyleMatcher_TiesBreakBySeedOrder(t *testing.T) {
	// Identical seed vectors produce identical similarities; earlier seeds
	// win, every run.
	seeds := []models.StyleSeed{
		seed("earlier", []float32{1, 0}),
		seed("later", []float32{1, 0}),
	}
	m := pipeline.NewStyleMatcher(seeds)

	for range 10 {
		predictions := m.Match([]float32{1, 0})
		require.Len(t, predictions, 2)
		assert.Equal(t, "earlier", predictions[0].StyleName)
		assert.Equal(t, "later", predictions[1].StyleName)
	}
}

func TestStyleMatcher_MismatchedSeedDimensionsSkipped(t *testing.T) {
	seeds := []models.StyleSeed{
		seed("broken", []float32{1, 0, 0}),
		seed("fine", []float32{1, 0}),
	}
	m := pipeline.NewStyleMatcher(seeds)

	predictions := m.Match([]float32{1, 0})
	require.Len(t, predictions, 1)
	assert.Equal(t, "fine", predictions[0].StyleName)
}

func TestStyleMatcher_NoSurvivorsIsNotAnError(t *testing.T) {
	m := pipeline.NewStyleMatcher([]models.StyleSeed{
		seed("unrelated", []float32{0, 1}),
	})

	predictions := m.Match([]float32{1, 0})
	assert.Empty(t, predictions)
}

func TestStyleMatcher_EmptySeedSet(t *testing.T) {
	m := pipeline.NewStyleMatcher(nil)
	assert.Empty(t, m.Match([]float32{1, 0}))
}
