package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("stage started", logging.String(logging.FieldEventType, logging.EventStageStart))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &line); err != nil {
		t.Fatalf("log file line is not JSON: %v (%q)", err, content)
	}
	if line["msg"] != "stage started" || line[logging.FieldEventType] != logging.EventStageStart {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "debug",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("debug with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleHeaderShowsJobAndStage(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "3f2b8c1a-0000-4000-8000-000000000000")
	ctx = services.WithStage(ctx, "rendering")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "workflow")).Info(
		"stage retry scheduled",
		logging.String(logging.FieldEventType, logging.EventStageRetry),
		logging.Duration("retry_delay", 2*time.Second),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, want := range []string{"[workflow]", "Job 3f2b8c1a (rendering)", "stage retry scheduled", "Event: stage_retry", "Retry In: 2s"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in console output, got %q", want, text)
		}
	}
}

func TestNewJSONLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.Int("percent", 40))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"percent":40`) {
		t.Fatalf("expected JSON attribute, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "job-1")
	ctx = services.WithStage(ctx, "transcribing")
	ctx = services.WithAttempt(ctx, 2)
	ctx = services.WithRequestID(ctx, "req-9")

	fields := logging.ContextFields(ctx)
	got := map[string]string{}
	for _, f := range fields {
		got[f.Key] = f.Value.String()
	}
	want := map[string]string{
		logging.FieldJobID:         "job-1",
		logging.FieldStage:         "transcribing",
		logging.FieldAttempt:       "2",
		logging.FieldCorrelationID: "req-9",
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("field %s = %q, want %q", key, got[key], value)
		}
	}
}

func TestWarnWithContextFillsMissingFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "b-roll unavailable", "broll_skipped",
		logging.String(logging.FieldErrorHint, "set a stock footage key"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, content)
	}
	if line[logging.FieldEventType] != "broll_skipped" {
		t.Fatalf("expected event type default, got %v", line)
	}
	if line[logging.FieldErrorHint] != "set a stock footage key" {
		t.Fatalf("caller hint should win over default, got %v", line[logging.FieldErrorHint])
	}
	if line[logging.FieldImpact] == nil {
		t.Fatalf("expected impact default, got %v", line)
	}
}

func TestConsoleDebugFlattensGroups(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-groups.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.WithGroup("render").With(logging.String("preset", "vertical")).Debug("render args",
		logging.Int("width", 1080),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, want := range []string{"render.preset: vertical", "render.width: 1080"} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("expected %q in debug output, got %q", want, content)
		}
	}
}

func TestConsoleInfoHidesDebugOnlyFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-hidden.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("job added",
		logging.String("owner_id", "creator-1"),
		logging.String("source_path", "/uploads/raw.mp4"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if strings.Contains(text, "/uploads/raw.mp4") {
		t.Fatalf("source path should be hidden at info level, got %q", text)
	}
	if !strings.Contains(text, "creator-1") || !strings.Contains(text, "+ 1 more field hidden") {
		t.Fatalf("expected owner and hidden count, got %q", text)
	}
}
