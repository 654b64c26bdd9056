package dispatch_api_client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DispatchApiClient talks to the dispatch backend's REST surface.
type DispatchApiClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewDispatchApiClient creates a client for the given backend base URL.
func NewDispatchApiClient(baseURL string) *DispatchApiClient {
	return &DispatchApiClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// SetHeader sets a header sent on every request, e.g. the auth token.
func (c *DispatchApiClient) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetTimeout overrides the default request timeout.
func (c *DispatchApiClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

func (c *DispatchApiClient) makeRequest(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}

func (c *DispatchApiClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.makeRequest(ctx, http.MethodGet, endpoint, nil)
}

func (c *DispatchApiClient) patch(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	return c.makeRequest(ctx, http.MethodPatch, endpoint, body)
}
