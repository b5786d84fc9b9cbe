package supabase

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"
)

type RealtimeClient struct {
	client *supabase.Client
}

func NewRealtimeClient(client *supabase.Client) *RealtimeClient {
	return &RealtimeClient{
		client: client,
	}
}

func (r *RealtimeClient) PublishEvent(channel string, event string, payload map[string]interface{}) error {
	// Note: Supabase Go client doesn't have direct Realtime publish
	// We'll use database updates which trigger Realtime automatically
	// For explicit events, we can use the Realtime REST API if needed

	// For now, pipeline_jobs row updates trigger Realtime automatically
	// This is a placeholder for future explicit event publishing
	return nil
}

func (r *RealtimeClient) PublishJobEvent(jobID uuid.UUID, event string, payload map[string]interface{}) error {
	channel := fmt.Sprintf("job:%s", jobID.String())
	return r.PublishEvent(channel, event, payload)
}

// Event payloads
func JobStartedPayload(jobID uuid.UUID, jobType string, totalItems int) map[string]interface{} {
	return map[string]interface{}{
		"job_id":      jobID.String(),
		"job_type":    jobType,
		"status":      "running",
		"total_items": totalItems,
	}
}

func JobProgressPayload(jobID uuid.UUID, processed, failed, total int) map[string]interface{} {
	return map[string]interface{}{
		"job_id":          jobID.String(),
		"status":          "running",
		"processed_items": processed,
		"failed_items":    failed,
		"total_items":     total,
	}
}

func JobCompletedPayload(jobID uuid.UUID, processed, failed int) map[string]interface{} {
	return map[string]interface{}{
		"job_id":          jobID.String(),
		"status":          "completed",
		"processed_items": processed,
		"failed_items":    failed,
	}
}

func JobFailedPayload(jobID uuid.UUID, errorMsg string) map[string]interface{} {
	return map[string]interface{}{
		"job_id": jobID.String(),
		"status": "failed",
		"error":  errorMsg,
	}
}

func JobCancelledPayload(jobID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"job_id": jobID.String(),
		"status": "cancelled",
	}
}
