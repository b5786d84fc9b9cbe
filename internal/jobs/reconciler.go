package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"inkdex-backend/internal/models"
)

const (
	DefaultReconcileInterval = time.Minute
	DefaultRunningStaleAfter = 5 * time.Minute
	DefaultPendingStaleAfter = 30 * time.Minute
)

// CacheInvalidator drops cached pipeline views after state transitions.
type CacheInvalidator interface {
	InvalidatePipelineCaches(ctx context.Context) error
}

type ReconcilerConfig struct {
	Interval          time.Duration
	RunningStaleAfter time.Duration
	PendingStaleAfter time.Duration
}

// Reconciler sweeps active jobs on an interval and drives abandoned ones to a
// terminal status. A running job whose heartbeat stopped is presumed dead and
// failed; a pending job nothing ever picked up is cancelled. Every write is
// conditional on the state the sweep observed, so a worker that comes back to
// life between read and write wins.
type Reconciler struct {
	store       Store
	invalidator CacheInvalidator

	interval          time.Duration
	runningStaleAfter time.Duration
	pendingStaleAfter time.Duration
}

func NewReconciler(store Store, invalidator CacheInvalidator, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReconcileInterval
	}
	if cfg.RunningStaleAfter <= 0 {
		cfg.RunningStaleAfter = DefaultRunningStaleAfter
	}
	if cfg.PendingStaleAfter <= 0 {
		cfg.PendingStaleAfter = DefaultPendingStaleAfter
	}
	return &Reconciler{
		store:             store,
		invalidator:       invalidator,
		interval:          cfg.Interval,
		runningStaleAfter: cfg.RunningStaleAfter,
		pendingStaleAfter: cfg.PendingStaleAfter,
	}
}

// Run sweeps until the context is cancelled. A failed pass is logged and
// skipped; the next tick retries from a fresh read.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				log.Printf("Reconcile pass failed, will retry next interval: %v", err)
			}
		}
	}
}

// ReconcileOnce performs a single sweep: fresh read, staleness decisions,
// conditional writes, then one batched cache invalidation if anything moved.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	jobs, err := r.store.ListActiveJobs(ctx)
	if err != nil {
		return err
	}

	decisions := StaleDecisions(jobs, time.Now(), r.runningStaleAfter, r.pendingStaleAfter)

	var transitions int
	for _, d := range decisions {
		switch d.Action {
		case ActionFailStale:
			errorMsg := fmt.Sprintf("no heartbeat for %s, presumed dead", d.StaleFor.Round(time.Second))
			ok, err := r.store.FailJobIfStillStale(ctx, d.JobID, d.ObservedHeartbeat, errorMsg)
			if err != nil {
				return err
			}
			if ok {
				log.Printf("Reconciler failed stale running job %s", d.JobID)
				transitions++
			}
		case ActionCancelAbandoned:
			ok, err := r.store.CancelJobIfStillPending(ctx, d.JobID)
			if err != nil {
				return err
			}
			if ok {
				log.Printf("Reconciler cancelled abandoned pending job %s", d.JobID)
				transitions++
			}
		}
	}

	if transitions > 0 && r.invalidator != nil {
		if err := r.invalidator.InvalidatePipelineCaches(ctx); err != nil {
			return err
		}
	}
	return nil
}

type Action int

const (
	ActionNone Action = iota
	ActionFailStale
	ActionCancelAbandoned
)

// Decision is one planned transition for a stale job, carrying the heartbeat
// value observed at read time so the write can be made conditional on it, and
// how long the job had been silent when observed.
type Decision struct {
	JobID             uuid.UUID
	Action            Action
	ObservedHeartbeat sql.NullTime
	StaleFor          time.Duration
}

// StaleDecisions computes which active jobs are stale at the given instant.
// A running job is stale when its last heartbeat (falling back to its start
// time) is older than runningStaleAfter. A pending job is stale when it has
// sat unclaimed longer than pendingStaleAfter. Jobs exactly at the boundary
// are not yet stale.
func StaleDecisions(jobs []models.PipelineJob, now time.Time, runningStaleAfter, pendingStaleAfter time.Duration) []Decision {
	var decisions []Decision
	for _, job := range jobs {
		switch job.Status {
		case models.JobStatusRunning:
			ref := job.CreatedAt
			if job.LastHeartbeatAt.Valid {
				ref = job.LastHeartbeatAt.Time
			} else if job.StartedAt.Valid {
				ref = job.StartedAt.Time
			}
			if silence := now.Sub(ref); silence > runningStaleAfter {
				decisions = append(decisions, Decision{
					JobID:             job.ID,
					Action:            ActionFailStale,
					ObservedHeartbeat: job.LastHeartbeatAt,
					StaleFor:          silence,
				})
			}
		case models.JobStatusPending:
			if age := now.Sub(job.CreatedAt); age > pendingStaleAfter {
				decisions = append(decisions, Decision{
					JobID:    job.ID,
					Action:   ActionCancelAbandoned,
					StaleFor: age,
				})
			}
		}
	}
	return decisions
}
