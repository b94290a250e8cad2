package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/queue"
)

const defaultClientTimeout = 15 * time.Second

// ErrUnavailable reports that no daemon API is configured.
var ErrUnavailable = errors.New("daemon api unavailable")

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx daemon response that maps to no domain error.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon api returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  HTTPDoer
}

// NewClient builds a client for the API bound at bind (host:port or URL).
func NewClient(bind, token string, doer HTTPDoer) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	if doer == nil {
		doer = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{base: base, token: strings.TrimSpace(token), http: doer}, nil
}

// NewClientFromConfig builds a client from [paths] api_bind and api_token.
func NewClientFromConfig(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, ErrUnavailable
	}
	return NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken, nil)
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var payload DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, "", &payload)
	return payload, err
}

// ListJobs fetches jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, statuses ...queue.Status) ([]Job, error) {
	values := url.Values{}
	for _, status := range statuses {
		values.Add("status", string(status))
	}
	var payload JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", values, "", &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var payload JobResponse
	err := c.do(ctx, http.MethodGet, jobPath(id, ""), nil, id, &payload)
	return payload.Job, err
}

// JobStatus fetches the progress view of one job.
func (c *Client) JobStatus(ctx context.Context, id string) (JobStatus, error) {
	var payload JobStatusResponse
	err := c.do(ctx, http.MethodGet, jobPath(id, "status"), nil, id, &payload)
	return payload.Status, err
}

// Submit schedules a job on the daemon.
func (c *Client) Submit(ctx context.Context, id string) (Job, error) {
	var payload JobResponse
	err := c.do(ctx, http.MethodPost, jobPath(id, "submit"), nil, id, &payload)
	return payload.Job, err
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(ctx context.Context, id string) (Job, error) {
	var payload JobResponse
	err := c.do(ctx, http.MethodPost, jobPath(id, "cancel"), nil, id, &payload)
	return payload.Job, err
}

func jobPath(id, action string) string {
	path := "/api/jobs/" + url.PathEscape(id)
	if action != "" {
		path += "/" + action
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, jobID string, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read api response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, body, jobID)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode api response: %w", err)
	}
	return nil
}

// decodeError maps daemon responses back onto the errors the store would
// have returned locally.
func decodeError(status int, body []byte, jobID string) error {
	var payload ErrorResponse
	message := strings.TrimSpace(string(bytes.TrimSpace(body)))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	switch {
	case status == http.StatusNotFound && jobID != "":
		return &queue.JobNotFoundError{ID: jobID}
	case status == http.StatusConflict:
		return fmt.Errorf("%s: %w", message, queue.ErrJobTerminal)
	}
	return &StatusError{StatusCode: status, Message: message}
}
