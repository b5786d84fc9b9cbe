package models

import "time"

// IngestImage is one source image reference in an ingestion request.
type IngestImage struct {
	SourceURL string     `json:"source_url" binding:"required"`
	PostID    string     `json:"post_id" binding:"required"`
	Caption   string     `json:"caption,omitempty"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
	LikeCount *int64     `json:"like_count,omitempty"`
}

type IngestBatchRequest struct {
	ArtistID   string        `json:"artist_id" binding:"required"`
	Provenance string        `json:"provenance" binding:"required"`
	Images     []IngestImage `json:"images" binding:"required"`
}

type CreateJobRequest struct {
	JobType string `json:"job_type" binding:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
