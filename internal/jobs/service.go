package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
	"inkdex-backend/internal/models"
	"inkdex-backend/internal/supabase"
)

// Store is the persistence surface for pipeline jobs. All transitions are
// conditional updates: a transition that lost its race reports false.
type Store interface {
	CreateJob(ctx context.Context, jobType models.JobType, totalItems int, triggeredBy string) (*models.PipelineJob, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.PipelineJob, error)
	StartJob(ctx context.Context, jobID uuid.UUID) (bool, error)
	UpdateJobProgress(ctx context.Context, jobID uuid.UUID, processed, failed int) error
	CompleteJob(ctx context.Context, jobID uuid.UUID, processed, failed int) (bool, error)
	FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) (bool, error)
	CancelJob(ctx context.Context, jobID uuid.UUID) (bool, error)
	ListActiveJobs(ctx context.Context) ([]models.PipelineJob, error)
	FailJobIfStillStale(ctx context.Context, jobID uuid.UUID, observedHeartbeat sql.NullTime, errorMsg string) (bool, error)
	CancelJobIfStillPending(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// Publisher pushes job lifecycle events to subscribed clients.
type Publisher interface {
	PublishJobEvent(jobID uuid.UUID, event string, payload map[string]interface{}) error
}

// Runner executes the actual work of a job, reporting cumulative progress
// through the callback. It returns final counts and a fatal error, if any.
type Runner func(ctx context.Context, onProgress func(processed, failed int)) (processed, failed int, err error)

// Service owns the pipeline job lifecycle: creation, supervised execution,
// and cancellation. Work runs detached from the request that triggered it.
type Service struct {
	store     Store
	publisher Publisher
}

func NewService(store Store, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// Launch creates a pending job and starts executing it in the background.
// The returned job is the pending row; callers poll GetJob for progress.
func (s *Service) Launch(jobType models.JobType, totalItems int, triggeredBy string, runner Runner) (*models.PipelineJob, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("invalid job type: %s", jobType)
	}

	job, err := s.store.CreateJob(context.Background(), jobType, totalItems, triggeredBy)
	if err != nil {
		return nil, err
	}

	go s.run(job, runner)

	return job, nil
}

// run drives one job through its lifecycle. The context is detached from the
// originating request; the batch ceiling inside the runner bounds execution.
func (s *Service) run(job *models.PipelineJob, runner Runner) {
	ctx := context.Background()

	started, err := s.store.StartJob(ctx, job.ID)
	if err != nil {
		log.Printf("Failed to start job %s: %v", job.ID, err)
		return
	}
	if !started {
		// Cancelled or reconciled away before a worker picked it up.
		log.Printf("Job %s no longer pending, skipping run", job.ID)
		return
	}
	s.publish(job.ID, "job_started", supabase.JobStartedPayload(job.ID, string(job.JobType), job.TotalItems))

	processed, failed, runErr := runner(ctx, func(processed, failed int) {
		if err := s.store.UpdateJobProgress(ctx, job.ID, processed, failed); err != nil {
			log.Printf("Failed to record progress for job %s: %v", job.ID, err)
		}
		s.publish(job.ID, "job_progress", supabase.JobProgressPayload(job.ID, processed, failed, job.TotalItems))
	})

	if runErr != nil {
		if ok, err := s.store.FailJob(ctx, job.ID, runErr.Error()); err != nil {
			log.Printf("Failed to mark job %s failed: %v", job.ID, err)
		} else if ok {
			s.publish(job.ID, "job_failed", supabase.JobFailedPayload(job.ID, runErr.Error()))
		}
		return
	}

	if ok, err := s.store.CompleteJob(ctx, job.ID, processed, failed); err != nil {
		log.Printf("Failed to mark job %s completed: %v", job.ID, err)
	} else if ok {
		s.publish(job.ID, "job_completed", supabase.JobCompletedPayload(job.ID, processed, failed))
	} else {
		// Lost the race against a cancel or stale reconcile.
		log.Printf("Job %s finished work but was already terminal", job.ID)
	}
}

func (s *Service) Get(ctx context.Context, jobID uuid.UUID) (*models.PipelineJob, error) {
	return s.store.GetJob(ctx, jobID)
}

// Cancel requests cancellation of an active job. Terminal jobs are left
// untouched; the bool reports whether a transition happened.
func (s *Service) Cancel(ctx context.Context, jobID uuid.UUID) (bool, error) {
	cancelled, err := s.store.CancelJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if cancelled {
		s.publish(jobID, "job_cancelled", supabase.JobCancelledPayload(jobID))
	}
	return cancelled, nil
}

func (s *Service) publish(jobID uuid.UUID, event string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJobEvent(jobID, event, payload); err != nil {
		log.Printf("Failed to publish %s for job %s: %v", event, jobID, err)
	}
}
