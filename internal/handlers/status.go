package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"inkdex-backend/internal/models"
	"inkdex-backend/internal/supabase"
)

const recentJobsLimit = 10

type StatusHandler struct {
	dbClient *supabase.DatabaseClient
}

func NewStatusHandler(dbClient *supabase.DatabaseClient) *StatusHandler {
	return &StatusHandler{
		dbClient: dbClient,
	}
}

// GetPipelineStatus godoc
// @Summary     Pipeline status overview
// @Description Returns job counts per status, ingestion volume over the last day and the most recent jobs
// @Tags        status
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.PipelineStatusResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /pipeline/status [get]
func (h *StatusHandler) GetPipelineStatus(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.dbClient.JobStatusCounts(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to count jobs", Message: err.Error()})
		return
	}

	totalImages, err := h.dbClient.CountImages(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to count images", Message: err.Error()})
		return
	}

	imagesLast24h, err := h.dbClient.CountImagesSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to count images", Message: err.Error()})
		return
	}

	recent, err := h.dbClient.ListRecentJobs(ctx, recentJobsLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to list jobs", Message: err.Error()})
		return
	}

	jobCounts := make(map[string]int, len(counts))
	for status, count := range counts {
		jobCounts[string(status)] = count
	}

	recentJobs := make([]models.JobResponse, len(recent))
	for i := range recent {
		recentJobs[i] = models.NewJobResponse(&recent[i])
	}

	c.JSON(http.StatusOK, models.PipelineStatusResponse{
		JobCounts:     jobCounts,
		TotalImages:   totalImages,
		ImagesLast24h: imagesLast24h,
		RecentJobs:    recentJobs,
	})
}
