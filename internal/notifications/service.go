package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/config"
)

const userAgent = "reelforge/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventStageSkipped Event = "stage_skipped"
	EventTest         Event = "test"
)

// Payload carries event-specific values.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted: cfg.Notifications.JobCompleted,
			EventJobFailed:    cfg.Notifications.JobFailed,
			EventStageSkipped: cfg.Notifications.StageSkipped,
			EventTest:         true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	job := shortJob(stringValue(data, "jobID"))
	switch event {
	case EventJobCompleted:
		message := fmt.Sprintf("✅ Published job %s", job)
		if url := stringValue(data, "url"); url != "" {
			message = fmt.Sprintf("%s\n%s", message, url)
		}
		if d := durationValue(data, "duration"); d > 0 {
			message = fmt.Sprintf("%s\nTook %s", message, d.Round(time.Second))
		}
		return payload{
			title:    "reelforge - Published",
			message:  message,
			tags:     []string{"reelforge", "job", "completed"},
			priority: "high",
		}, true
	case EventJobFailed:
		stageName := stringValue(data, "stage")
		reason := stringValue(data, "error")
		if reason == "" {
			reason = "unknown"
		}
		return payload{
			title:    "reelforge - Job Failed",
			message:  fmt.Sprintf("❌ Job %s failed at %s: %s", job, stageName, reason),
			tags:     []string{"reelforge", "error", "alert"},
			priority: "high",
		}, true
	case EventStageSkipped:
		return payload{
			title:   "reelforge - Stage Skipped",
			message: fmt.Sprintf("⏭️ Job %s skipped %s: %s", job, stringValue(data, "stage"), stringValue(data, "error")),
			tags:    []string{"reelforge", "stage", "skipped"},
		}, true
	case EventTest:
		return payload{
			title:    "reelforge - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"reelforge", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func stringValue(data Payload, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func durationValue(data Payload, key string) time.Duration {
	if d, ok := data[key].(time.Duration); ok && d > 0 {
		return d
	}
	return 0
}

func shortJob(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
