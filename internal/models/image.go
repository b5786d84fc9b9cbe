package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
)

// EmbeddingDim is the dimensionality of the CLIP embeddings produced by the
// inference service. Vectors of any other length are rejected.
const EmbeddingDim = 768

// Provenance is the channel through which an image entered the system.
type Provenance string

const (
	ProvenanceManualImport   Provenance = "manual_import"
	ProvenancePlatformSync   Provenance = "platform_sync"
	ProvenanceProfileSearch  Provenance = "profile_search"
	ProvenanceRecommendation Provenance = "recommendation"
	ProvenanceScrape         Provenance = "scrape"
)

func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceManualImport, ProvenancePlatformSync, ProvenanceProfileSearch,
		ProvenanceRecommendation, ProvenanceScrape:
		return true
	}
	return false
}

// SourceImage is one image source reference handed to the ingestion pipeline.
type SourceImage struct {
	ArtistID      uuid.UUID
	SourceURL     string
	PostID        string
	Caption       string
	PostedAt      *time.Time
	LikeCount     *int64
	Provenance    Provenance
	ManuallyAdded bool
	AutoSynced    bool
}

// StorageKeys holds the four object keys written for every ingested image.
// Either all four objects exist or no record references them.
type StorageKeys struct {
	Display   string
	Thumb320  string
	Thumb640  string
	Thumb1280 string
}

type PortfolioImage struct {
	ID                uuid.UUID
	ArtistID          uuid.UUID
	SourcePostID      string
	SourceURL         string
	StorageDisplayKey string
	StorageThumb320   string
	StorageThumb640   string
	StorageThumb1280  string
	Embedding         pgvector.Vector
	IsColor           sql.NullBool
	Status            string
	Provenance        Provenance
	ManuallyAdded     bool
	AutoSynced        bool
	Caption           sql.NullString
	PostedAt          sql.NullTime
	LikeCount         sql.NullInt64
	CreatedAt         time.Time
}

// StyleSeed is a named reference embedding for one visual style category.
// Seeds are long-lived reference data; the pipeline never mutates them.
type StyleSeed struct {
	ID                uuid.UUID
	StyleName         string
	Embedding         []float32
	ThresholdOverride sql.NullFloat64
	CreatedAt         time.Time
}

type StyleTag struct {
	ImageID    uuid.UUID
	StyleName  string
	Confidence float64
	IsPrimary  bool
}

// ImageEmbedding is the minimal projection used when re-tagging the catalog
// against a refreshed seed set.
type ImageEmbedding struct {
	ImageID   uuid.UUID
	Embedding []float32
}

// ImageResult is the per-image outcome returned to the batch caller.
// Failures are captured here, never escalated out of the orchestrator.
type ImageResult struct {
	PostID  string
	ImageID uuid.UUID
	Success bool
	Error   string
}
