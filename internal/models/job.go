package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

type JobType string

const (
	JobTypeIngest JobType = "ingest"
	JobTypeSync   JobType = "platform_sync"
	JobTypeRetag  JobType = "retag"
)

func (t JobType) Valid() bool {
	switch t {
	case JobTypeIngest, JobTypeSync, JobTypeRetag:
		return true
	}
	return false
}

// PipelineJob is a coarse supervised unit of background work, usually wrapping
// many image runs. Rows are never deleted, only driven to a terminal status.
type PipelineJob struct {
	ID              uuid.UUID
	JobType         JobType
	Status          JobStatus
	TotalItems      int
	ProcessedItems  int
	FailedItems     int
	LastHeartbeatAt sql.NullTime
	TriggeredBy     string
	ErrorMessage    sql.NullString
	CreatedAt       time.Time
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
}
