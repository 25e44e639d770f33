package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// Upload timeout per attempt — generous for long renders
	uploadTimeout = 20 * time.Minute

	// Render-record PATCH timeout
	recordTimeout = 30 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Client talks to a Supabase-style storage endpoint: object uploads
// under a bucket, public URLs, and PATCH updates to the renders table.
type Client struct {
	url        string
	serviceKey string
	bucket     string
	client     *http.Client
	log        *zap.SugaredLogger
}

func New(url, serviceKey, bucket string, log *zap.SugaredLogger) *Client {
	return &Client{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.Named("storage"),
	}
}

// Upload puts raw bytes at the bucket path with retries and exponential
// backoff. Uses PUT with x-upsert so re-publishing a render id is safe.
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.url, c.bucket, path)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			c.log.Infof("upload retry %d/%d for %s (waiting %v)", attempt, maxRetries, path, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)

		req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
		req.Header.Set("x-upsert", "true")

		resp, err := c.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to upload: %w", err)
			if isRetryableError(err) {
				c.log.Warnf("upload attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return lastErr
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			if attempt > 0 {
				c.log.Infof("upload succeeded on attempt %d for %s", attempt+1, path)
			}
			return nil
		}

		lastErr = &StatusError{Status: resp.StatusCode, Body: truncate(string(body), 300)}

		if isRetryableStatus(resp.StatusCode) {
			c.log.Warnf("upload attempt %d returned status %d (retryable): %s",
				attempt+1, resp.StatusCode, truncate(string(body), 200))
			continue
		}

		// Non-retryable status (400, 401, 403, 404, 413, etc.)
		return lastErr
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

// UploadFile uploads a file from a local path.
func (c *Client) UploadFile(ctx context.Context, storagePath, localPath, contentType string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", localPath, err)
	}
	return c.Upload(ctx, storagePath, data, contentType)
}

// PublicURL returns the unauthenticated URL for an uploaded object.
func (c *Client) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.url, c.bucket, path)
}

// UpdateRender mirrors a job's terminal state into the renders table.
// Best-effort: failures are logged and never bubble into the pipeline.
func (c *Client) UpdateRender(ctx context.Context, renderID string, fields map[string]string) {
	if renderID == "" || len(fields) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	for k, v := range fields {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&sb, "%q:%q", k, v)
	}
	sb.WriteByte('}')

	url := fmt.Sprintf("%s/rest/v1/renders?id=eq.%s", c.url, renderID)

	patchCtx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(patchCtx, http.MethodPatch, url, strings.NewReader(sb.String()))
	if err != nil {
		c.log.Errorf("failed to build render update for %s: %v", renderID, err)
		return
	}

	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Errorf("render update for %s failed: %v", renderID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		c.log.Errorf("render update for %s returned %d: %s", renderID, resp.StatusCode, truncate(string(body), 300))
		return
	}
	c.log.Infof("updated render record %s: %v", renderID, fields)
}

// StatusError carries a non-2xx upload response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload failed with status %d: %s", e.Status, e.Body)
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// Add 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
