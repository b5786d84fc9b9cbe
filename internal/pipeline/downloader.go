package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	downloadTimeout     = 30 * time.Second
	maxDownloadAttempts = 3
	downloadBaseDelay   = time.Second

	// Some CDNs refuse requests without a browser user agent.
	downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Downloader fetches raw image bytes with a per-attempt deadline and linear
// backoff between attempts (delay = base x attempt number).
type Downloader struct {
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration
}

func NewDownloader() *Downloader {
	return &Downloader{
		httpClient:  &http.Client{},
		maxAttempts: maxDownloadAttempts,
		baseDelay:   downloadBaseDelay,
		timeout:     downloadTimeout,
	}
}

func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		data, err := d.fetchOnce(ctx, rawURL)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < d.maxAttempts {
			select {
			case <-time.After(d.baseDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("download failed after %d attempts: %w", d.maxAttempts, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}
