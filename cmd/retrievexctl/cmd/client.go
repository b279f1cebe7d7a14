package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiError is a non-2xx answer carrying the server's error envelope.
type apiError struct {
	StatusCode int
	Kind       string `json:"error_kind"`
	Message    string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, e.Message, e.StatusCode)
}

// apiClient is a thin JSON client for the retrievex HTTP API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends body (if any) to path and decodes the reply into out.
// Statuses listed in accept are decoded like 200.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any, accept ...int) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 && !acceptable(resp.StatusCode, accept) {
		apiErr := &apiError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return resp.Header, apiErr
	}
	if out == nil {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.Header, fmt.Errorf("decode response: %w", err)
	}
	return resp.Header, nil
}

func acceptable(status int, accept []int) bool {
	for _, s := range accept {
		if s == status {
			return true
		}
	}
	return false
}
