package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storyreel/internal/infra"
)

// Options configures the provider HTTP client.
type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the generation provider API. When no
// API key is configured it degrades to deterministic synthetic results so
// the worker stays fully operational in local and CI environments.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
	timeout    time.Duration
}

// NewClient validates options and constructs a client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("pipeline: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("pipeline: invalid base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     opts.Logger,
		timeout:    timeout,
	}, nil
}

// Synthetic reports whether the client fabricates results locally.
func (c *Client) Synthetic() bool {
	return c.apiKey == ""
}

type invokeResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type pollResponse struct {
	Status string            `json:"status"`
	Result map[string]string `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (c *Client) invoke(ctx context.Context, path string, payload any) (*Invocation, error) {
	if c.Synthetic() {
		return c.syntheticInvoke(path, payload)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encode request: %w", err)
	}
	var out invokeResponse
	if err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		return nil, fmt.Errorf("pipeline: provider returned no job id")
	}
	return &Invocation{ProviderJobID: out.JobID, Status: normalizeStatus(out.Status)}, nil
}

func (c *Client) poll(ctx context.Context, path, providerJobID string) (*PollResult, error) {
	if c.Synthetic() {
		return c.syntheticPoll(path, providerJobID)
	}

	var out pollResponse
	endpoint := path + "/" + url.PathEscape(providerJobID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &PollResult{Status: normalizeStatus(out.Status), Result: out.Result, Error: out.Error}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return fmt.Errorf("pipeline: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(started)).
			Msg("pipeline: provider call")
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("pipeline: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pipeline: %s %s: status %d: %s", method, path, resp.StatusCode, truncate(payload, 256))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("pipeline: decode response: %w", err)
	}
	return nil
}

// syntheticInvoke derives a stable provider job id from the payload so
// repeated invocations for the same input observe the same job.
func (c *Client) syntheticInvoke(path string, payload any) (*Invocation, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encode request: %w", err)
	}
	sum := sha256.Sum256(append([]byte(path+"|"), body...))
	return &Invocation{
		ProviderJobID: "synthetic-" + hex.EncodeToString(sum[:8]),
		Status:        StatusQueued,
	}, nil
}

func (c *Client) syntheticPoll(path, providerJobID string) (*PollResult, error) {
	stage := strings.Trim(path, "/")
	if idx := strings.LastIndexByte(stage, '/'); idx >= 0 {
		stage = stage[idx+1:]
	}
	return &PollResult{
		Status: StatusCompleted,
		Result: map[string]string{
			"url": fmt.Sprintf("https://synthetic.invalid/%s/%s", stage, providerJobID),
		},
	}, nil
}

func normalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending":
		return StatusQueued
	case "processing", "running", "in_progress":
		return StatusProcessing
	case "completed", "succeeded", "done":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	}
	return StatusProcessing
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
