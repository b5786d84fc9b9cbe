package models

import "time"

type JobResponse struct {
	ID              string     `json:"job_id"`
	JobType         string     `json:"job_type"`
	Status          string     `json:"status"`
	TotalItems      int        `json:"total_items"`
	ProcessedItems  int        `json:"processed_items"`
	FailedItems     int        `json:"failed_items"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	TriggeredBy     string     `json:"triggered_by,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// NewJobResponse flattens the nullable columns for the wire.
func NewJobResponse(job *PipelineJob) JobResponse {
	resp := JobResponse{
		ID:             job.ID.String(),
		JobType:        string(job.JobType),
		Status:         string(job.Status),
		TotalItems:     job.TotalItems,
		ProcessedItems: job.ProcessedItems,
		FailedItems:    job.FailedItems,
		TriggeredBy:    job.TriggeredBy,
		CreatedAt:      job.CreatedAt,
	}
	if job.LastHeartbeatAt.Valid {
		t := job.LastHeartbeatAt.Time
		resp.LastHeartbeatAt = &t
	}
	if job.ErrorMessage.Valid {
		resp.ErrorMessage = job.ErrorMessage.String
	}
	if job.StartedAt.Valid {
		t := job.StartedAt.Time
		resp.StartedAt = &t
	}
	if job.CompletedAt.Valid {
		t := job.CompletedAt.Time
		resp.CompletedAt = &t
	}
	return resp
}

type IngestAcceptedResponse struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	TotalItems int    `json:"total_items"`
}

type PipelineStatusResponse struct {
	JobCounts     map[string]int `json:"job_counts"`
	TotalImages   int            `json:"total_images"`
	ImagesLast24h int            `json:"images_last_24h"`
	RecentJobs    []JobResponse  `json:"recent_jobs"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
