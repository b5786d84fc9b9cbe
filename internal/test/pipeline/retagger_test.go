package pipeline_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"inkdex-backend/internal/models"
	"inkdex-backend/internal/pipeline"
)

type fakeRetagStore struct {
	mu       sync.Mutex
	seeds    []models.StyleSeed
	images   []models.ImageEmbedding
	replaced map[uuid.UUID][]models.StyleTag
}

func (f *fakeRetagStore) ListStyleSeeds(ctx context.Context) ([]models.StyleSeed, error) {
	return f.seeds, nil
}

func (f *fakeRetagStore) ListActiveImageEmbeddings(ctx context.Context) ([]models.ImageEmbedding, error) {
	return f.images, nil
}

func (f *fakeRetagStore) ReplaceStyleTags(ctx context.Context, imageID uuid.UUID, tags []models.StyleTag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaced == nil {
		f.replaced = make(map[uuid.UUID][]models.StyleTag)
	}
	f.replaced[imageID] = tags
	return nil
}

func TestRetagger_ReclassifiesEveryActiveImage(t *testing.T) {
	matching := uuid.New()
	nonMatching := uuid.New()
	store := &fakeRetagStore{
		seeds: []models.StyleSeed{seed("traditional", []float32{1, 0})},
		images: []models.ImageEmbedding{
			{ImageID: matching, Embedding: []float32{1, 0}},
			{ImageID: nonMatching, Embedding: []float32{0, 1}},
		},
	}
	r := pipeline.NewRetagger(store)

	processed, failed, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, 0, failed)

	// The matching image gets a tag set; the orthogonal one gets its tags
	// cleared (empty replacement, not a skip).
	require.Len(t, store.replaced[matching], 1)
	assert.Equal(t, "traditional", store.replaced[matching][0].StyleName)
	assert.Empty(t, store.replaced[nonMatching])
	assert.Contains(t, store.replaced, nonMatching)
}

func TestRetagger_ReportsFinalProgress(t *testing.T) {
	store := &fakeRetagStore{
		seeds: []models.StyleSeed{seed("traditional", []float32{1, 0})},
		images: []models.ImageEmbedding{
			{ImageID: uuid.New(), Embedding: []float32{1, 0}},
		},
	}
	r := pipeline.NewRetagger(store)

	var last [2]int
	_, _, err := r.Run(context.Background(), func(processed, failed int) {
		last = [2]int{processed, failed}
	})
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 0}, last)
}

func TestRetagger_EmptyCatalog(t *testing.T) {
	r := pipeline.NewRetagger(&fakeRetagStore{})

	processed, failed, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Zero(t, failed)
}
