package sheets

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

	"reelforge/internal/config"
	"reelforge/internal/services"
	"reelforge/internal/stage"
	"reelforge/internal/transcript"
)

// HTTPDoer describes the HTTP client used by the transcript store.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts transcript text to an Apps Script style endpoint that
// appends it to a spreadsheet.
type Client struct {
	url     string
	timeout time.Duration
	client  HTTPDoer
}

// NewClient builds a client from the [transcript_store] config section.
func NewClient(cfg *config.Config) *Client {
	return NewHTTPClient(cfg.TranscriptStore.URL, time.Duration(cfg.TranscriptStore.TimeoutSeconds)*time.Second, http.DefaultClient)
}

// NewHTTPClient constructs a client with an explicit HTTP doer.
func NewHTTPClient(url string, timeout time.Duration, client HTTPDoer) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		url:     strings.TrimSpace(url),
		timeout: timeout,
		client:  client,
	}
}

// Configured reports whether an endpoint URL is set.
func (c *Client) Configured() bool { return c != nil && c.url != "" }

// Endpoint returns the configured URL.
func (c *Client) Endpoint() string { return c.url }

type storeRequest struct {
	Transcript string `json:"transcript"`
}

type storeResponse struct {
	URL string `json:"url"`
	Row int    `json:"row"`
}

// StoreTranscript uploads the plain text of segments and returns a
// reference to the stored copy.
func (c *Client) StoreTranscript(ctx context.Context, jobID string, segments []transcript.Segment) (string, error) {
	if !c.Configured() {
		return "", services.WithHint(
			services.Wrap(services.KindValidation, stage.StoringTranscript, "store transcript", "no transcript store URL configured", nil),
			"set transcript_store.url or GOOGLE_APPS_SCRIPT_API_URL",
		)
	}
	text := transcript.Transcript{Segments: segments}.Text()
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.KindValidation, stage.StoringTranscript, "store transcript", "", transcript.ErrEmpty)
	}
	payload, err := json.Marshal(storeRequest{Transcript: text})
	if err != nil {
		return "", services.Wrap(services.KindProcessing, stage.StoringTranscript, "encode transcript", "", err)
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", services.Wrap(services.KindValidation, stage.StoringTranscript, "build request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.KindStorage, stage.StoringTranscript, "post transcript", "failed to reach endpoint", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if err := statusError(resp.StatusCode, body); err != nil {
		return "", err
	}
	return reference(jobID, body), nil
}

func statusError(code int, body []byte) error {
	if code < http.StatusBadRequest {
		return nil
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	msg := fmt.Sprintf("HTTP error %d", code)
	if detail != "" {
		msg += ": " + detail
	}
	kind := services.KindValidation
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
		kind = services.KindStorage
	}
	return services.Wrap(kind, stage.StoringTranscript, "post transcript", msg, errors.New(http.StatusText(code)))
}

func reference(jobID string, body []byte) string {
	var resp storeResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		if url := strings.TrimSpace(resp.URL); url != "" {
			return url
		}
		if resp.Row > 0 {
			return fmt.Sprintf("sheets:row/%d", resp.Row)
		}
	}
	return "sheets:job/" + jobID
}

// Check reports whether an endpoint is configured.
func (c *Client) Check(_ context.Context, id stage.ID) stage.Health {
	if !c.Configured() {
		return stage.Unhealthy(id, "transcript store URL not configured")
	}
	return stage.Health{Stage: id, Ready: true, Detail: c.url}
}
