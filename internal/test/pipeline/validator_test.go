package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"inkdex-backend/internal/pipeline"
)

func TestHostValidator_AllowedHosts(t *testing.T) {
	v := pipeline.NewHostValidator()

	allowed := []string{
		"https://instagram.com/p/abc",
		"https://www.instagram.com/p/abc",
		"https://scontent.cdninstagram.com/v/t51/image.jpg",
		"https://scontent-lga3-1.xx.fbcdn.net/v/image.jpg",
	}
	for _, url := range allowed {
		assert.NoError(t, v.Validate(url), url)
	}
}

func TestHostValidator_RejectsUnknownHosts(t *testing.T) {
	v := pipeline.NewHostValidator()

	rejected := []string{
		"https://example.com/image.jpg",
		"https://evil-instagram.com/image.jpg",
		"https://instagram.com.attacker.net/image.jpg",
		"https://fbcdn.net.evil.org/image.jpg",
	}
	for _, url := range rejected {
		err := v.Validate(url)
		assert.ErrorIs(t, err, pipeline.ErrHostNotAllowed, url)
	}
}

func TestHostValidator_RejectsNonHTTPSchemes(t *testing.T) {
	v := pipeline.NewHostValidator()

	assert.ErrorIs(t, v.Validate("ftp://instagram.com/image.jpg"), pipeline.ErrHostNotAllowed)
	assert.ErrorIs(t, v.Validate("file:///etc/passwd"), pipeline.ErrHostNotAllowed)
}

func TestHostValidator_CaseInsensitive(t *testing.T) {
	v := pipeline.NewHostValidator()

	assert.NoError(t, v.Validate("https://INSTAGRAM.COM/p/abc"))
	assert.NoError(t, v.Validate("https://Scontent.CDNinstagram.com/image.jpg"))
}

func TestHostValidator_CustomHosts(t *testing.T) {
	v := pipeline.NewHostValidator("cdn.example.org")

	assert.NoError(t, v.Validate("https://cdn.example.org/a.jpg"))
	assert.NoError(t, v.Validate("https://eu.cdn.example.org/a.jpg"))
	assert.ErrorIs(t, v.Validate("https://instagram.com/p/abc"), pipeline.ErrHostNotAllowed)
}
