package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClient constructs a client for the daemon listening at baseURL. An empty
// token disables the Authorization header.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   token,
		// Long-poll event fetches hold the connection open server-side,
		// so the transport timeout stays above the poll window.
		httpc: &http.Client{Timeout: 60 * time.Second},
	}
}

// Submit enqueues a new conversion job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Job, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return Job{}, err
	}
	return resp.Job, nil
}

// Job fetches one job by id.
func (c *Client) Job(ctx context.Context, id int64) (Job, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%d", id), nil, &resp); err != nil {
		return Job{}, err
	}
	return resp.Job, nil
}

// List fetches jobs, optionally filtered by stage.
func (c *Client) List(ctx context.Context, stages ...string) ([]Job, error) {
	path := "/api/jobs"
	if len(stages) > 0 {
		values := url.Values{}
		for _, st := range stages {
			if st = strings.TrimSpace(st); st != "" {
				values.Add("stage", st)
			}
		}
		if encoded := values.Encode(); encoded != "" {
			path += "?" + encoded
		}
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Cancel requests cooperative cancellation of a job.
func (c *Client) Cancel(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/jobs/%d/cancel", id), nil, nil)
}

// Retry moves failed jobs back into the pipeline. With no ids every failed
// job is retried.
func (c *Client) Retry(ctx context.Context, ids ...int64) (int64, error) {
	var resp CountResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/retry", RetryRequest{IDs: ids}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Events fetches progress events for a job after the given sequence. With
// wait set the daemon long-polls until new events arrive or its poll window
// elapses.
func (c *Client) Events(ctx context.Context, id int64, since uint64, limit int, wait bool) (EventsResponse, error) {
	values := url.Values{}
	if since > 0 {
		values.Set("since", strconv.FormatUint(since, 10))
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if wait {
		values.Set("wait", "1")
	}
	path := fmt.Sprintf("/api/jobs/%d/events", id)
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp EventsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return EventsResponse{}, err
	}
	return resp, nil
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return DaemonStatus{}, err
	}
	return resp, nil
}

// History lists archived documents, newest first.
func (c *Client) History(ctx context.Context) ([]HistoryRecord, error) {
	var resp HistoryListResponse
	if err := c.do(ctx, http.MethodGet, "/api/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// ClearCompleted removes completed jobs from the queue.
func (c *Client) ClearCompleted(ctx context.Context) (int64, error) {
	var resp CountResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/clear-completed", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
