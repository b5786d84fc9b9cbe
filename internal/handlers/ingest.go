package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"inkdex-backend/internal/jobs"
	"inkdex-backend/internal/middleware"
	"inkdex-backend/internal/models"
	"inkdex-backend/internal/pipeline"
	"inkdex-backend/internal/supabase"
)

// maxIngestBatchSize caps one request. Larger imports should be split by the
// caller; the pipeline's batch ceiling assumes batches of this order.
const maxIngestBatchSize = 100

type IngestHandler struct {
	pipeline   *pipeline.Service
	jobService *jobs.Service
}

func NewIngestHandler(pipelineService *pipeline.Service, jobService *jobs.Service) *IngestHandler {
	return &IngestHandler{
		pipeline:   pipelineService,
		jobService: jobService,
	}
}

// IngestBatch godoc
// @Summary     Ingest a batch of source images
// @Description Validates the request, creates an ingest job and processes the images in the background. Returns immediately with the job id.
// @Tags        ingest
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.IngestBatchRequest true "Batch of source image references"
// @Success     202 {object} models.IngestAcceptedResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /ingest [post]
func (h *IngestHandler) IngestBatch(c *gin.Context) {
	userID, _ := c.Get(middleware.UserIDKey)
	triggeredBy, _ := userID.(string)

	var req models.IngestBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	artistID, err := uuid.Parse(req.ArtistID)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid artist id"})
		return
	}

	provenance := models.Provenance(req.Provenance)
	if !provenance.Valid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid provenance", Message: req.Provenance})
		return
	}

	if len(req.Images) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "images must not be empty"})
		return
	}
	if len(req.Images) > maxIngestBatchSize {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "too many images in one batch"})
		return
	}

	sources := make([]models.SourceImage, len(req.Images))
	for i, img := range req.Images {
		sources[i] = models.SourceImage{
			ArtistID:      artistID,
			SourceURL:     img.SourceURL,
			PostID:        img.PostID,
			Caption:       img.Caption,
			PostedAt:      img.PostedAt,
			LikeCount:     img.LikeCount,
			Provenance:    provenance,
			ManuallyAdded: provenance == models.ProvenanceManualImport,
			AutoSynced:    provenance == models.ProvenancePlatformSync,
		}
	}

	runner := func(ctx context.Context, onProgress func(processed, failed int)) (int, int, error) {
		results, err := h.pipeline.ProcessBatch(ctx, sources, onProgress)
		var processed, failed int
		for _, r := range results {
			processed++
			if !r.Success {
				failed++
			}
		}
		return processed, failed, err
	}

	job, err := h.jobService.Launch(models.JobTypeIngest, len(sources), triggeredBy, runner)
	if err != nil {
		if errors.Is(err, supabase.ErrActiveJobExists) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "an ingest job is already active",
				Message: "wait for the current job to finish or cancel it",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to create job", Message: err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, models.IngestAcceptedResponse{
		JobID:      job.ID.String(),
		Status:     string(job.Status),
		TotalItems: job.TotalItems,
	})
}
