package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"
	"inkdex-backend/internal/models"
)

// ErrActiveJobExists is returned by CreateJob when another job of the same
// type is already pending or running.
var ErrActiveJobExists = errors.New("a job of this type is already active")

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// InsertPortfolioImage inserts one image record. A unique violation on
// (artist_id, source_post_id) means another run already persisted this image;
// that is reported as duplicate=true with a nil error so callers can treat it
// as success.
func (d *DatabaseClient) InsertPortfolioImage(ctx context.Context, img *models.PortfolioImage) (uuid.UUID, bool, error) {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO portfolio_images (
			id, artist_id, source_post_id, source_url,
			storage_display_key, storage_thumb_320, storage_thumb_640, storage_thumb_1280,
			embedding, is_color, status, provenance, manually_added, auto_synced,
			caption, posted_at, like_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, img.ID, img.ArtistID, img.SourcePostID, img.SourceURL,
		img.StorageDisplayKey, img.StorageThumb320, img.StorageThumb640, img.StorageThumb1280,
		img.Embedding, img.IsColor, img.Status, string(img.Provenance), img.ManuallyAdded, img.AutoSynced,
		img.Caption, img.PostedAt, img.LikeCount)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return uuid.Nil, true, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to insert portfolio image: %w", err)
	}

	return img.ID, false, nil
}

// UpsertStyleTags replaces confidence and primary flag on conflict so retags
// converge on the latest classification instead of erroring.
func (d *DatabaseClient) UpsertStyleTags(ctx context.Context, tags []models.StyleTag) error {
	if len(tags) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, tag := range tags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO image_style_tags (image_id, style_name, confidence, is_primary)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (image_id, style_name)
			DO UPDATE SET confidence = EXCLUDED.confidence, is_primary = EXCLUDED.is_primary
		`, tag.ImageID, tag.StyleName, tag.Confidence, tag.IsPrimary)
		if err != nil {
			return fmt.Errorf("failed to upsert style tag %s: %w", tag.StyleName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit style tags: %w", err)
	}
	return nil
}

// ListStyleSeeds returns the seed set in insertion order. Position matters:
// the matcher uses it to break similarity ties deterministically.
func (d *DatabaseClient) ListStyleSeeds(ctx context.Context) ([]models.StyleSeed, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, style_name, embedding, threshold_override, created_at
		FROM style_seeds
		ORDER BY created_at ASC, style_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list style seeds: %w", err)
	}
	defer rows.Close()

	var seeds []models.StyleSeed
	for rows.Next() {
		var seed models.StyleSeed
		var embedding pgvector.Vector
		err := rows.Scan(&seed.ID, &seed.StyleName, &embedding, &seed.ThresholdOverride, &seed.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan style seed: %w", err)
		}
		seed.Embedding = embedding.Slice()
		seeds = append(seeds, seed)
	}

	return seeds, rows.Err()
}

// ListActiveImageEmbeddings returns the id and embedding of every active
// image, the minimal projection a re-tag sweep needs.
func (d *DatabaseClient) ListActiveImageEmbeddings(ctx context.Context) ([]models.ImageEmbedding, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, embedding
		FROM portfolio_images
		WHERE status = 'active'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list image embeddings: %w", err)
	}
	defer rows.Close()

	var images []models.ImageEmbedding
	for rows.Next() {
		var img models.ImageEmbedding
		var embedding pgvector.Vector
		if err := rows.Scan(&img.ImageID, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan image embedding: %w", err)
		}
		img.Embedding = embedding.Slice()
		images = append(images, img)
	}

	return images, rows.Err()
}

// ReplaceStyleTags swaps an image's tag set atomically. Styles that no longer
// qualify under the current seed set are dropped, not just overwritten.
func (d *DatabaseClient) ReplaceStyleTags(ctx context.Context, imageID uuid.UUID, tags []models.StyleTag) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM image_style_tags WHERE image_id = $1`, imageID); err != nil {
		return fmt.Errorf("failed to clear style tags: %w", err)
	}

	for _, tag := range tags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO image_style_tags (image_id, style_name, confidence, is_primary)
			VALUES ($1, $2, $3, $4)
		`, tag.ImageID, tag.StyleName, tag.Confidence, tag.IsPrimary)
		if err != nil {
			return fmt.Errorf("failed to insert style tag %s: %w", tag.StyleName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit style tags: %w", err)
	}
	return nil
}

// CreateJob inserts a pending job. The partial unique index on active jobs
// rejects a second pending or running job of the same type.
func (d *DatabaseClient) CreateJob(ctx context.Context, jobType models.JobType, totalItems int, triggeredBy string) (*models.PipelineJob, error) {
	var job models.PipelineJob
	var jt, status string
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO pipeline_jobs (id, job_type, status, total_items, triggered_by)
		VALUES ($1, $2, 'pending', $3, $4)
		RETURNING id, job_type, status, total_items, processed_items, failed_items,
		          last_heartbeat_at, triggered_by, error_message, created_at, started_at, completed_at
	`, uuid.New(), string(jobType), totalItems, triggeredBy).Scan(
		&job.ID, &jt, &status, &job.TotalItems, &job.ProcessedItems, &job.FailedItems,
		&job.LastHeartbeatAt, &job.TriggeredBy, &job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrActiveJobExists
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	job.JobType = models.JobType(jt)
	job.Status = models.JobStatus(status)

	return &job, nil
}

func (d *DatabaseClient) GetJob(ctx context.Context, jobID uuid.UUID) (*models.PipelineJob, error) {
	return d.scanJob(d.db.QueryRowContext(ctx, `
		SELECT id, job_type, status, total_items, processed_items, failed_items,
		       last_heartbeat_at, triggered_by, error_message, created_at, started_at, completed_at
		FROM pipeline_jobs
		WHERE id = $1
	`, jobID))
}

// StartJob moves a pending job to running and stamps the first heartbeat.
// Returns false if the job was no longer pending (cancelled in the meantime).
func (d *DatabaseClient) StartJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	result, err := d.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = 'running', started_at = NOW(), last_heartbeat_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to start job: %w", err)
	}
	return oneRowAffected(result)
}

// UpdateJobProgress writes cumulative counters and refreshes the heartbeat.
// Only running jobs accept progress; a cancelled job silently drops it.
func (d *DatabaseClient) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, processed, failed int) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET processed_items = $1, failed_items = $2, last_heartbeat_at = NOW()
		WHERE id = $3 AND status = 'running'
	`, processed, failed, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

func (d *DatabaseClient) CompleteJob(ctx context.Context, jobID uuid.UUID, processed, failed int) (bool, error) {
	result, err := d.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = 'completed', processed_items = $1, failed_items = $2, completed_at = NOW()
		WHERE id = $3 AND status = 'running'
	`, processed, failed, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	return oneRowAffected(result)
}

func (d *DatabaseClient) FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) (bool, error) {
	result, err := d.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = 'failed', error_message = $1, completed_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'running')
	`, errorMsg, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}
	return oneRowAffected(result)
}

// CancelJob drives a pending or running job to cancelled. Terminal jobs are
// left untouched and reported via the bool.
func (d *DatabaseClient) CancelJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	result, err := d.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = 'cancelled', completed_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running')
	`, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	return oneRowAffected(result)
}

// ListActiveJobs returns every pending and running job, freshly read.
// Reconciliation always works from this, never from cached rows.
func (d *DatabaseClient) ListActiveJobs(ctx context.Context) ([]models.PipelineJob, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, job_type, status, total_items, processed_items, failed_items,
		       last_heartbeat_at, triggered_by, error_message, created_at, started_at, completed_at
		FROM pipeline_jobs
		WHERE status IN ('pending', 'running')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.PipelineJob
	for rows.Next() {
		var job models.PipelineJob
		var jt, status string
		err := rows.Scan(
			&job.ID, &jt, &status, &job.TotalItems, &job.ProcessedItems, &job.FailedItems,
			&job.LastHeartbeatAt, &job.TriggeredBy, &job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job.JobType = models.JobType(jt)
		job.Status = models.JobStatus(status)
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (d *DatabaseClient) ListRecentJobs(ctx context.Context, limit int) ([]models.PipelineJob, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, job_type, status, total_items, processed_items, failed_items,
		       last_heartbeat_at, triggered_by, error_message, created_at, started_at, completed_at
		FROM pipeline_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.PipelineJob
	for rows.Next() {
		var job models.PipelineJob
		var jt, status string
		err := rows.Scan(
			&job.ID, &jt, &status, &job.TotalItems, &job.ProcessedItems, &job.FailedItems,
			&job.LastHeartbeatAt, &job.TriggeredBy, &job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job.JobType = models.JobType(jt)
		job.Status = models.JobStatus(status)
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// FailJobIfStillStale fails a running job only if its heartbeat has not moved
// since the reconciler observed it. A job that heartbeated in between is a
// live worker and must not be touched.
func (d *DatabaseClient) FailJobIfStillStale(ctx context.Context, jobID uuid.UUID, observedHeartbeat sql.NullTime, errorMsg string) (bool, error) {
	result, err := d.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = 'failed', error_message = $1, completed_at = NOW()
		WHERE id = $2 AND status = 'running'
		  AND last_heartbeat_at IS NOT DISTINCT FROM $3
	`, errorMsg, jobID, observedHeartbeat)
	if err != nil {
		return false, fmt.Errorf("failed to mark stale job: %w", err)
	}
	return oneRowAffected(result)
}

// CancelJobIfStillPending cancels an abandoned pending job, skipping it if a
// worker picked it up since the reconciler's read.
func (d *DatabaseClient) CancelJobIfStillPending(ctx context.Context, jobID uuid.UUID) (bool, error) {
	result, err := d.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = 'cancelled', error_message = 'abandoned before start', completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel pending job: %w", err)
	}
	return oneRowAffected(result)
}

// JobStatusCounts returns how many jobs sit in each status.
func (d *DatabaseClient) JobStatusCounts(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM pipeline_jobs
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[models.JobStatus(status)] = count
	}

	return counts, rows.Err()
}

// CountImages returns the total number of ingested images.
func (d *DatabaseClient) CountImages(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM portfolio_images`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return count, nil
}

// CountImagesSince returns how many images were ingested in the given window.
func (d *DatabaseClient) CountImagesSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM portfolio_images WHERE created_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return count, nil
}

func (d *DatabaseClient) scanJob(row *sql.Row) (*models.PipelineJob, error) {
	var job models.PipelineJob
	var jt, status string
	err := row.Scan(
		&job.ID, &jt, &status, &job.TotalItems, &job.ProcessedItems, &job.FailedItems,
		&job.LastHeartbeatAt, &job.TriggeredBy, &job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job.JobType = models.JobType(jt)
	job.Status = models.JobStatus(status)

	return &job, nil
}

func oneRowAffected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}
