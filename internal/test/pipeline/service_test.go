package pipeline_test

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"inkdex-backend/internal/models"
	"inkdex-backend/internal/pipeline"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) UploadVariant(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fakeRecordStore struct {
	mu          sync.Mutex
	seeds       []models.StyleSeed
	inserted    []*models.PortfolioImage
	tags        [][]models.StyleTag
	duplicate   bool
	insertCalls int
}

func (f *fakeRecordStore) InsertPortfolioImage(ctx context.Context, img *models.PortfolioImage) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.duplicate {
		return uuid.Nil, true, nil
	}
	f.inserted = append(f.inserted, img)
	return img.ID, false, nil
}

func (f *fakeRecordStore) UpsertStyleTags(ctx context.Context, tags []models.StyleTag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, tags)
	return nil
}

func (f *fakeRecordStore) ListStyleSeeds(ctx context.Context) ([]models.StyleSeed, error) {
	return f.seeds, nil
}

type fakeEmbedder struct {
	embedding []float32
	err       error
	delay     time.Duration
}

func (f *fakeEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

// imageServer serves a valid JPEG-encodable source image and reports how many
// downloads it handled.
func imageServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	data := encodeTestImage(t, 800, 600, color.RGBA{R: 180, G: 60, B: 40, A: 255})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	return server, u.Hostname()
}

func newTestService(t *testing.T, host string, embedder pipeline.Embedder, objects pipeline.ObjectStore, records pipeline.RecordStore, concurrency int) *pipeline.Service {
	t.Helper()
	return pipeline.NewService(
		pipeline.NewHostValidator(host),
		pipeline.NewDownloader(),
		pipeline.NewTranscoder(),
		embedder,
		objects,
		records,
		pipeline.ServiceConfig{BatchConcurrency: concurrency, BatchTimeout: time.Minute},
	)
}

func sourceFor(serverURL, postID string, artistID uuid.UUID) models.SourceImage {
	return models.SourceImage{
		ArtistID:   artistID,
		SourceURL:  serverURL + "/image.jpg",
		PostID:     postID,
		Provenance: models.ProvenanceManualImport,
	}
}

func TestService_FullPipelineSuccess(t *testing.T) {
	server, host := imageServer(t)
	defer server.Close()

	objects := newFakeObjectStore()
	records := &fakeRecordStore{
		seeds: []models.StyleSeed{seed("traditional", []float32{1, 0})},
	}
	embedder := &fakeEmbedder{embedding: []float32{1, 0}}
	svc := newTestService(t, host, embedder, objects, records, 1)

	artistID := uuid.New()
	result := svc.ProcessImage(context.Background(), sourceFor(server.URL, "Cxy123abcd", artistID))

	require.True(t, result.Success, result.Error)
	assert.NotEqual(t, uuid.Nil, result.ImageID)

	// All four variants landed in storage under deterministic keys.
	assert.Equal(t, 4, objects.count())

	require.Len(t, records.inserted, 1)
	record := records.inserted[0]
	assert.Equal(t, artistID, record.ArtistID)
	assert.Equal(t, "Cxy123abcd", record.SourcePostID)
	assert.Equal(t, "active", record.Status)
	assert.True(t, record.IsColor.Valid)
	assert.True(t, record.IsColor.Bool)

	require.Len(t, records.tags, 1)
	require.Len(t, records.tags[0], 1)
	assert.Equal(t, "traditional", records.tags[0][0].StyleName)
	assert.True(t, records.tags[0][0].IsPrimary)
}

func TestService_DisallowedHostNeverDownloads(t *testing.T) {
	objects := newFakeObjectStore()
	records := &fakeRecordStore{}
	svc := newTestService(t, "trusted.example.org", &fakeEmbedder{}, objects, records, 1)

	result := svc.ProcessImage(context.Background(), models.SourceImage{
		ArtistID:   uuid.New(),
		SourceURL:  "https://untrusted.example.net/image.jpg",
		PostID:     "Cxy123abcd",
		Provenance: models.ProvenanceScrape,
	})

	assert.False(t, result.Success)
	assert.Equal(t, 0, objects.count())
	assert.Zero(t, records.insertCalls)
}

func TestService_DuplicateAbsorbedAsSuccess(t *testing.T) {
	server, host := imageServer(t)
	defer server.Close()

	objects := newFakeObjectStore()
	records := &fakeRecordStore{
		seeds:     []models.StyleSeed{seed("traditional", []float32{1, 0})},
		duplicate: true,
	}
	svc := newTestService(t, host, &fakeEmbedder{embedding: []float32{1, 0}}, objects, records, 1)

	result := svc.ProcessImage(context.Background(), sourceFor(server.URL, "Cxy123abcd", uuid.New()))

	assert.True(t, result.Success)
	assert.Equal(t, uuid.Nil, result.ImageID)
	// No tags are written when the record already existed.
	assert.Empty(t, records.tags)
}

func TestService_EmbeddingFailureBlocksPersistence(t *testing.T) {
	server, host := imageServer(t)
	defer server.Close()

	objects := newFakeObjectStore()
	records := &fakeRecordStore{}
	svc := newTestService(t, host, &fakeEmbedder{err: errors.New("inference down")}, objects, records, 1)

	result := svc.ProcessImage(context.Background(), sourceFor(server.URL, "Cxy123abcd", uuid.New()))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "embedding")
	assert.Zero(t, records.insertCalls)
}

func TestService_ConcurrentDuplicatesCoalesce(t *testing.T) {
	server, host := imageServer(t)
	defer server.Close()

	objects := newFakeObjectStore()
	records := &fakeRecordStore{}
	embedder := &fakeEmbedder{embedding: []float32{1, 0}, delay: 100 * time.Millisecond}
	svc := newTestService(t, host, embedder, objects, records, 2)

	src := sourceFor(server.URL, "Cxy123abcd", uuid.New())

	var wg sync.WaitGroup
	results := make([]models.ImageResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.ProcessImage(context.Background(), src)
		}(i)
	}
	wg.Wait()

	// Exactly one run hit the database; both callers saw its result.
	assert.Equal(t, 1, records.insertCalls)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.Equal(t, results[0].ImageID, results[1].ImageID)
}

func TestService_BatchReportsCumulativeProgress(t *testing.T) {
	server, host := imageServer(t)
	defer server.Close()

	objects := newFakeObjectStore()
	records := &fakeRecordStore{}
	svc := newTestService(t, host, &fakeEmbedder{embedding: []float32{1, 0}}, objects, records, 2)

	artistID := uuid.New()
	sources := []models.SourceImage{
		sourceFor(server.URL, "Cxy123abcd", artistID),
		sourceFor(server.URL, "Dxy123abcd", artistID),
		sourceFor(server.URL, "Exy123abcd", artistID),
		sourceFor(server.URL, "Fxy123abcd", artistID),
		sourceFor(server.URL, "Gxy123abcd", artistID),
	}

	var progress [][2]int
	results, err := svc.ProcessBatch(context.Background(), sources, func(processed, failed int) {
		progress = append(progress, [2]int{processed, failed})
	})
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.True(t, r.Success, r.Error)
	}

	// Windows of two: progress after 2, 4 and 5 images.
	require.Len(t, progress, 3)
	assert.Equal(t, [2]int{2, 0}, progress[0])
	assert.Equal(t, [2]int{4, 0}, progress[1])
	assert.Equal(t, [2]int{5, 0}, progress[2])
}

func TestService_PerImageFailuresDoNotAbortBatch(t *testing.T) {
	server, host := imageServer(t)
	defer server.Close()

	objects := newFakeObjectStore()
	records := &fakeRecordStore{}
	svc := newTestService(t, host, &fakeEmbedder{embedding: []float32{1, 0}}, objects, records, 2)

	artistID := uuid.New()
	sources := []models.SourceImage{
		sourceFor(server.URL, "Cxy123abcd", artistID),
		{ArtistID: artistID, SourceURL: "https://untrusted.example.net/x.jpg", PostID: "Dxy123abcd", Provenance: models.ProvenanceScrape},
		sourceFor(server.URL, "Exy123abcd", artistID),
	}

	results, err := svc.ProcessBatch(context.Background(), sources, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
}
