package pipeline

import (
	"math"
	"sort"

	"inkdex-backend/internal/models"
)

const (
	// DefaultStyleThreshold is the minimum cosine similarity for a style to
	// be kept when the seed carries no per-style override.
	DefaultStyleThreshold = 0.35

	// MaxStylesPerImage bounds how many tags one image can carry.
	MaxStylesPerImage = 3
)

// StylePrediction is one surviving style for an image, ordered by descending
// similarity. The first prediction is the primary tag.
type StylePrediction struct {
	StyleName  string
	Confidence float64
	IsPrimary  bool
}

// StyleMatcher is a deterministic multi-label classifier over a fixed seed
// set. Identical (vector, seed set) inputs always yield an identical ordered
// result: ties are broken by seed-set position, never left to sort order.
type StyleMatcher struct {
	seeds            []models.StyleSeed
	defaultThreshold float64
	maxTags          int
}

func NewStyleMatcher(seeds []models.StyleSeed) *StyleMatcher {
	return &StyleMatcher{
		seeds:            seeds,
		defaultThreshold: DefaultStyleThreshold,
		maxTags:          MaxStylesPerImage,
	}
}

// Match classifies the embedding against every seed. A similarity exactly
// equal to the threshold is included. Zero surviving styles is a valid,
// non-error outcome.
func (m *StyleMatcher) Match(embedding []float32) []StylePrediction {
	type candidate struct {
		seedIndex  int
		styleName  string
		similarity float64
	}

	var kept []candidate
	for i, seed := range m.seeds {
		if len(seed.Embedding) != len(embedding) {
			continue
		}

		similarity := cosineSimilarity(embedding, seed.Embedding)

		threshold := m.defaultThreshold
		if seed.ThresholdOverride.Valid {
			threshold = seed.ThresholdOverride.Float64
		}
		if similarity >= threshold {
			kept = append(kept, candidate{seedIndex: i, styleName: seed.StyleName, similarity: similarity})
		}
	}

	sort.Slice(kept, func(a, b int) bool {
		if kept[a].similarity != kept[b].similarity {
			return kept[a].similarity > kept[b].similarity
		}
		return kept[a].seedIndex < kept[b].seedIndex
	})

	if len(kept) > m.maxTags {
		kept = kept[:m.maxTags]
	}

	predictions := make([]StylePrediction, len(kept))
	for i, c := range kept {
		predictions[i] = StylePrediction{
			StyleName:  c.styleName,
			Confidence: c.similarity,
			IsPrimary:  i == 0,
		}
	}
	return predictions
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	magnitude := math.Sqrt(normA) * math.Sqrt(normB)
	if magnitude == 0 {
		return 0
	}
	return dot / magnitude
}
