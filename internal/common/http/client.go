// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxResponseBytes caps how much of a reply body is buffered.
const DefaultMaxResponseBytes int64 = 64 << 20

var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// Client is a thin JSON-over-HTTP client for auxiliary backends.
type Client struct {
	httpClient       *http.Client
	maxResponseBytes int64
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxResponseBytes: DefaultMaxResponseBytes,
	}
}

// WithMaxResponseBytes overrides the reply size cap. Non-positive values
// keep the current cap.
func (c *Client) WithMaxResponseBytes(n int64) *Client {
	if n > 0 {
		c.maxResponseBytes = n
	}
	return c
}

// StatusError is returned for non-2xx replies.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("POST %s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}

// PostJSON posts body with a JSON content type and returns the raw reply.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url, Body: snippet}
	}
	if int64(len(data)) > c.maxResponseBytes {
		return nil, fmt.Errorf("POST %s: %w (%d bytes)", url, ErrResponseTooLarge, c.maxResponseBytes)
	}

	return data, nil
}
