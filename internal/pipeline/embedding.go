package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"inkdex-backend/internal/models"
)

const (
	embedMaxAttempts = 3
	embedBaseDelay   = time.Second
	embedMaxDelay    = 10 * time.Second
)

// EmbeddingClient calls the CLIP inference service to turn an image into a
// fixed-length feature vector. Transient failures and dimension mismatches
// are retried with exponential backoff (base x 2^(attempt-1), capped),
// distinct from the linear policy used for plain network I/O.
type EmbeddingClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	dim         int
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

type embedRequest struct {
	ImageData string `json:"image_data"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func NewEmbeddingClient(baseURL, apiKey string) *EmbeddingClient {
	return &EmbeddingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dim:         models.EmbeddingDim,
		maxAttempts: embedMaxAttempts,
		baseDelay:   embedBaseDelay,
		maxDelay:    embedMaxDelay,
	}
}

// EmbedImage produces the embedding for one image buffer.
func (c *EmbeddingClient) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		embedding, err := c.embedOnce(ctx, data)
		if err == nil {
			return embedding, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < c.maxAttempts {
			delay := c.baseDelay * time.Duration(1<<(attempt-1))
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *EmbeddingClient) embedOnce(ctx context.Context, data []byte) ([]float32, error) {
	reqBody := embedRequest{
		ImageData: base64.StdEncoding.EncodeToString(data),
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/embeddings/image"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d, body: %s", resp.StatusCode, string(body))
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Embedding) != c.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(result.Embedding), c.dim)
	}
	return result.Embedding, nil
}
