package pipeline

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"inkdex-backend/internal/models"
)

// Post ids appear in storage keys, so they are validated to prevent path
// traversal. Two formats exist: platform post shortcodes and generated ids
// for manual imports.
var (
	shortcodePattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{8,15}$`)
	manualPostIDPattern = regexp.MustCompile(`^manual_\d+_\d+$`)
)

func validPostID(postID string) bool {
	if manualPostIDPattern.MatchString(postID) {
		return true
	}
	return shortcodePattern.MatchString(postID)
}

// VariantKeys derives the four deterministic storage keys for an image.
// Re-running the pipeline for the same (artist, post) pair yields the same
// keys, so uploads safely overwrite prior partial runs.
func VariantKeys(artistID uuid.UUID, postID string) (models.StorageKeys, error) {
	if !validPostID(postID) {
		return models.StorageKeys{}, fmt.Errorf("invalid post id format: %q", postID)
	}

	return models.StorageKeys{
		Display:   fmt.Sprintf("display/%s/%s.jpg", artistID, postID),
		Thumb320:  fmt.Sprintf("thumbs/320/%s/%s.jpg", artistID, postID),
		Thumb640:  fmt.Sprintf("thumbs/640/%s/%s.jpg", artistID, postID),
		Thumb1280: fmt.Sprintf("thumbs/1280/%s/%s.jpg", artistID, postID),
	}, nil
}
