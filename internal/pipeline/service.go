package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"inkdex-backend/internal/models"
)

const (
	defaultBatchConcurrency = 3
	defaultBatchTimeout     = 9 * time.Minute

	uploadMaxAttempts = 3
	uploadBaseDelay   = time.Second
)

// ObjectStore persists derived image variants. Uploads must be idempotent:
// writing the same key twice overwrites rather than duplicating.
type ObjectStore interface {
	UploadVariant(ctx context.Context, key string, data []byte) error
}

// RecordStore persists image records and style tags and serves the seed set.
type RecordStore interface {
	// InsertPortfolioImage inserts the record. A uniqueness collision on
	// (artist, post) is reported via duplicate=true with a nil error.
	InsertPortfolioImage(ctx context.Context, img *models.PortfolioImage) (id uuid.UUID, duplicate bool, err error)
	UpsertStyleTags(ctx context.Context, tags []models.StyleTag) error
	ListStyleSeeds(ctx context.Context) ([]models.StyleSeed, error)
}

// Embedder produces a fixed-length feature vector for an image buffer.
type Embedder interface {
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)
}

type ServiceConfig struct {
	// BatchConcurrency is the window size W: W runs start together and the
	// whole window must finish before the next W begin.
	BatchConcurrency int
	// BatchTimeout is the hard outer ceiling on one batch invocation,
	// independent of any individual image's retry budget.
	BatchTimeout time.Duration
}

// Service runs the full per-image ingestion pipeline and fans batches out
// over a bounded window.
type Service struct {
	validator  *HostValidator
	downloader *Downloader
	transcoder *Transcoder
	embedder   Embedder
	objects    ObjectStore
	records    RecordStore

	concurrency  int
	batchTimeout time.Duration

	// In-flight runs keyed by (artist, post): a concurrent duplicate
	// submission waits for the first run's result instead of re-running.
	mu       sync.Mutex
	inflight map[string]*inflightRun
}

type inflightRun struct {
	done   chan struct{}
	result models.ImageResult
}

func NewService(
	validator *HostValidator,
	downloader *Downloader,
	transcoder *Transcoder,
	embedder Embedder,
	objects ObjectStore,
	records RecordStore,
	cfg ServiceConfig,
) *Service {
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	return &Service{
		validator:    validator,
		downloader:   downloader,
		transcoder:   transcoder,
		embedder:     embedder,
		objects:      objects,
		records:      records,
		concurrency:  cfg.BatchConcurrency,
		batchTimeout: cfg.BatchTimeout,
		inflight:     make(map[string]*inflightRun),
	}
}

// BatchProgress is invoked after every completed window with cumulative
// processed and failed counts.
type BatchProgress func(processed, failed int)

// ProcessBatch ingests the sources in windows of W concurrent runs. Per-image
// failures are captured in the result slice and never escalated; the only
// returned error is the outer ceiling firing, which abandons the remainder of
// the batch.
func (s *Service) ProcessBatch(ctx context.Context, sources []models.SourceImage, onProgress BatchProgress) ([]models.ImageResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	seeds, err := s.records.ListStyleSeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load style seeds: %w", err)
	}
	matcher := NewStyleMatcher(seeds)

	results := make([]models.ImageResult, len(sources))
	var processed, failed int

	for start := 0; start < len(sources); start += s.concurrency {
		if ctx.Err() != nil {
			for i := start; i < len(sources); i++ {
				results[i] = models.ImageResult{
					PostID:  sources[i].PostID,
					Success: false,
					Error:   "batch timed out before processing",
				}
			}
			return results, fmt.Errorf("batch abandoned: %w", ctx.Err())
		}

		end := min(start+s.concurrency, len(sources))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = s.processImage(ctx, sources[i], matcher)
			}(i)
		}
		wg.Wait()

		for i := start; i < end; i++ {
			processed++
			if !results[i].Success {
				failed++
			}
		}
		if onProgress != nil {
			onProgress(processed, failed)
		}
	}
	return results, nil
}

// ProcessImage runs the full pipeline for a single source image.
func (s *Service) ProcessImage(ctx context.Context, src models.SourceImage) models.ImageResult {
	seeds, err := s.records.ListStyleSeeds(ctx)
	if err != nil {
		return failure(src, fmt.Errorf("failed to load style seeds: %w", err))
	}
	return s.processImage(ctx, src, NewStyleMatcher(seeds))
}

func (s *Service) processImage(ctx context.Context, src models.SourceImage, matcher *StyleMatcher) models.ImageResult {
	key := src.ArtistID.String() + "/" + src.PostID

	s.mu.Lock()
	if run, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		select {
		case <-run.done:
			return run.result
		case <-ctx.Done():
			return failure(src, ctx.Err())
		}
	}
	run := &inflightRun{done: make(chan struct{})}
	s.inflight[key] = run
	s.mu.Unlock()

	run.result = s.runPipeline(ctx, src, matcher)

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	close(run.done)

	return run.result
}

func (s *Service) runPipeline(ctx context.Context, src models.SourceImage, matcher *StyleMatcher) models.ImageResult {
	if err := s.validator.Validate(src.SourceURL); err != nil {
		return failure(src, err)
	}

	keys, err := VariantKeys(src.ArtistID, src.PostID)
	if err != nil {
		return failure(src, err)
	}

	raw, err := s.downloader.Fetch(ctx, src.SourceURL)
	if err != nil {
		return failure(src, fmt.Errorf("download: %w", err))
	}

	variants, err := s.transcoder.Transcode(raw)
	if err != nil {
		return failure(src, fmt.Errorf("transcode: %w", err))
	}

	if err := s.uploadVariants(ctx, keys, variants); err != nil {
		return failure(src, fmt.Errorf("storage upload: %w", err))
	}

	embedding, err := s.embedder.EmbedImage(ctx, variants.Thumb640)
	if err != nil {
		return failure(src, fmt.Errorf("embedding: %w", err))
	}

	isColor := sql.NullBool{}
	if colored, err := AnalyzeColor(variants.Thumb320); err != nil {
		log.Printf("Color analysis failed for %s (non-fatal): %v", src.PostID, err)
	} else {
		isColor = sql.NullBool{Bool: colored, Valid: true}
	}

	predictions := matcher.Match(embedding)

	record := buildRecord(src, keys, embedding, isColor)
	imageID, duplicate, err := s.records.InsertPortfolioImage(ctx, record)
	if err != nil {
		return failure(src, fmt.Errorf("insert image record: %w", err))
	}
	if duplicate {
		// Another worker already persisted this (artist, post) pair.
		log.Printf("Duplicate image %s for artist %s, absorbing as success", src.PostID, src.ArtistID)
		return models.ImageResult{PostID: src.PostID, Success: true}
	}

	if len(predictions) > 0 {
		tags := make([]models.StyleTag, len(predictions))
		for i, p := range predictions {
			tags[i] = models.StyleTag{
				ImageID:    imageID,
				StyleName:  p.StyleName,
				Confidence: p.Confidence,
				IsPrimary:  p.IsPrimary,
			}
		}
		if err := s.records.UpsertStyleTags(ctx, tags); err != nil {
			log.Printf("Style tag upsert failed for image %s (non-fatal): %v", imageID, err)
		}
	}

	return models.ImageResult{PostID: src.PostID, ImageID: imageID, Success: true}
}

// uploadVariants writes all four objects concurrently, each with the same
// linear retry policy as the downloader. Any single failure aborts the image.
func (s *Service) uploadVariants(ctx context.Context, keys models.StorageKeys, variants *Variants) error {
	uploads := []struct {
		key  string
		data []byte
	}{
		{keys.Display, variants.Display},
		{keys.Thumb320, variants.Thumb320},
		{keys.Thumb640, variants.Thumb640},
		{keys.Thumb1280, variants.Thumb1280},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range uploads {
		g.Go(func() error {
			return s.uploadWithRetry(gctx, u.key, u.data)
		})
	}
	return g.Wait()
}

func (s *Service) uploadWithRetry(ctx context.Context, key string, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= uploadMaxAttempts; attempt++ {
		if err := s.objects.UploadVariant(ctx, key, data); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < uploadMaxAttempts {
			select {
			case <-time.After(uploadBaseDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("upload %s failed after %d attempts: %w", key, uploadMaxAttempts, lastErr)
}

func buildRecord(src models.SourceImage, keys models.StorageKeys, embedding []float32, isColor sql.NullBool) *models.PortfolioImage {
	record := &models.PortfolioImage{
		ID:                uuid.New(),
		ArtistID:          src.ArtistID,
		SourcePostID:      src.PostID,
		SourceURL:         src.SourceURL,
		StorageDisplayKey: keys.Display,
		StorageThumb320:   keys.Thumb320,
		StorageThumb640:   keys.Thumb640,
		StorageThumb1280:  keys.Thumb1280,
		Embedding:         pgvector.NewVector(embedding),
		IsColor:           isColor,
		Status:            "active",
		Provenance:        src.Provenance,
		ManuallyAdded:     src.ManuallyAdded,
		AutoSynced:        src.AutoSynced,
	}
	if src.Caption != "" {
		record.Caption = sql.NullString{String: src.Caption, Valid: true}
	}
	if src.PostedAt != nil {
		record.PostedAt = sql.NullTime{Time: *src.PostedAt, Valid: true}
	}
	if src.LikeCount != nil {
		record.LikeCount = sql.NullInt64{Int64: *src.LikeCount, Valid: true}
	}
	return record
}

func failure(src models.SourceImage, err error) models.ImageResult {
	return models.ImageResult{PostID: src.PostID, Success: false, Error: err.Error()}
}
