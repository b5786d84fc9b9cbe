package handlers

import (
	"database/sql"
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

type JobsHandler struct {
	jobService *jobs.Service
	retagger   *pipeline.Retagger
}

func NewJobsHandler(jobService *jobs.Service, retagger *pipeline.Retagger) *JobsHandler {
	return &JobsHandler{
		jobService: jobService,
		retagger:   retagger,
	}
}

// CreateJob godoc
// @Summary     Create a background job
// @Description Starts a catalog-wide job. Only retag jobs are created here; ingest jobs are created through POST /ingest.
// @Tags        jobs
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.CreateJobRequest true "Job type"
// @Success     202 {object} models.JobResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /jobs [post]
func (h *JobsHandler) CreateJob(c *gin.Context) {
	userID, _ := c.Get(middleware.UserIDKey)
	triggeredBy, _ := userID.(string)

	var req models.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	if models.JobType(req.JobType) != models.JobTypeRetag {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "unsupported job type",
			Message: "only retag jobs are created here; ingest jobs are created through POST /ingest",
		})
		return
	}

	job, err := h.jobService.Launch(models.JobTypeRetag, 0, triggeredBy, h.retagger.Run)
	if err != nil {
		if errors.Is(err, supabase.ErrActiveJobExists) {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: "a retag job is already active"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to create job", Message: err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, models.NewJobResponse(job))
}

// GetJob godoc
// @Summary     Get job status
// @Description Returns the current state and progress counters of a job
// @Tags        jobs
// @Produce     json
// @Security    Bearer
// @Param       job_id path string true "Job ID"
// @Success     200 {object} models.JobResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /jobs/{job_id} [get]
func (h *JobsHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid job id"})
		return
	}

	job, err := h.jobService.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to get job", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.NewJobResponse(job))
}

// CancelJob godoc
// @Summary     Cancel a job
// @Description Cancels a pending or running job. Jobs already in a terminal status are left untouched.
// @Tags        jobs
// @Produce     json
// @Security    Bearer
// @Param       job_id path string true "Job ID"
// @Success     200 {object} models.JobResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /jobs/{job_id}/cancel [post]
func (h *JobsHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid job id"})
		return
	}

	cancelled, err := h.jobService.Cancel(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to cancel job", Message: err.Error()})
		return
	}

	job, err := h.jobService.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to get job", Message: err.Error()})
		return
	}

	if !cancelled && job.Status.Terminal() && job.Status != models.JobStatusCancelled {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "job already terminal",
			Message: string(job.Status),
		})
		return
	}

	c.JSON(http.StatusOK, models.NewJobResponse(job))
}
