package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeChoice(t *testing.T, w http.ResponseWriter, message map[string]any) {
	t.Helper()
	payload := map[string]any{
		"choices": []any{map[string]any{"message": message}},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestCompleteJSONSendsPromptsAndModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected authorization %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "demo-model" || len(req.Messages) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		if req.ResponseFormat["type"] != "json_object" {
			t.Errorf("expected json response format, got %v", req.ResponseFormat)
		}
		writeChoice(t, w, map[string]any{"content": `{"ok":true}`})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestCompleteJSONReadsToolCallArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChoice(t, w, map[string]any{
			"content": "",
			"tool_calls": []any{map[string]any{
				"function": map[string]any{"arguments": `{"highlights":[]}`},
			}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "demo"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if !strings.Contains(content, "highlights") {
		t.Fatalf("expected tool call arguments, got %q", content)
	}
}

func TestCompleteJSONRetriesTemporaryStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		writeChoice(t, w, map[string]any{"content": `{"ok":true}`})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "demo"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("expected one Retry-After sleep of 2s, got %v", slept)
	}
}

func TestCompleteJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"},
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized || statusErr.Temporary() {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestCompleteJSONGivesUpAfterEmptyAnswers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChoice(t, w, map[string]any{"content": "   "})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "demo"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("expected attempt count in error, got %v", err)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected backoff %v", slept)
	}
}

func TestCompleteJSONRequiresKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "demo"})
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestDecodeJSONToleratesFormatting(t *testing.T) {
	cases := map[string]string{
		"plain":  `{"ok":true}`,
		"fenced": "```json\n{\"ok\":true}\n```",
		"prose":  "Here is the result: {\"ok\":true} hope it helps",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			var out struct {
				OK bool `json:"ok"`
			}
			if err := DecodeJSON(content, &out); err != nil {
				t.Fatalf("DecodeJSON returned error: %v", err)
			}
			if !out.OK {
				t.Fatal("expected ok=true")
			}
		})
	}

	var out map[string]any
	if err := DecodeJSON("no json here", &out); err == nil {
		t.Fatal("expected decode error")
	}
}
