package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"inkdex-backend/internal/models"
)

// retagProgressEvery controls how often cumulative progress is reported
// during a catalog sweep.
const retagProgressEvery = 25

// RetagStore is the persistence surface for a catalog re-tag sweep.
type RetagStore interface {
	ListStyleSeeds(ctx context.Context) ([]models.StyleSeed, error)
	ListActiveImageEmbeddings(ctx context.Context) ([]models.ImageEmbedding, error)
	ReplaceStyleTags(ctx context.Context, imageID uuid.UUID, tags []models.StyleTag) error
}

// Retagger re-runs style classification over stored embeddings. No images are
// downloaded or re-embedded; only the tag set changes, so a sweep is cheap
// relative to ingestion.
type Retagger struct {
	store RetagStore
}

func NewRetagger(store RetagStore) *Retagger {
	return &Retagger{store: store}
}

// Run sweeps every active image, replacing its tags with the classification
// under the current seed set. Per-image failures are counted and logged, not
// escalated.
func (r *Retagger) Run(ctx context.Context, onProgress func(processed, failed int)) (int, int, error) {
	seeds, err := r.store.ListStyleSeeds(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load style seeds: %w", err)
	}
	matcher := NewStyleMatcher(seeds)

	images, err := r.store.ListActiveImageEmbeddings(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list image embeddings: %w", err)
	}

	var processed, failed int
	for _, img := range images {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}

		predictions := matcher.Match(img.Embedding)
		tags := make([]models.StyleTag, len(predictions))
		for i, p := range predictions {
			tags[i] = models.StyleTag{
				ImageID:    img.ImageID,
				StyleName:  p.StyleName,
				Confidence: p.Confidence,
				IsPrimary:  p.IsPrimary,
			}
		}

		if err := r.store.ReplaceStyleTags(ctx, img.ImageID, tags); err != nil {
			log.Printf("Failed to replace tags for image %s: %v", img.ImageID, err)
			failed++
		}
		processed++

		if onProgress != nil && processed%retagProgressEvery == 0 {
			onProgress(processed, failed)
		}
	}

	if onProgress != nil {
		onProgress(processed, failed)
	}
	return processed, failed, nil
}
