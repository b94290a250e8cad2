package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reelforge/internal/config"
	"reelforge/internal/stage"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("REELFORGE_DATABASE_URL", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "reelforge", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Store.Backend != config.BackendSQLite {
		t.Fatalf("unexpected backend %q", cfg.Store.Backend)
	}
	if cfg.Store.SQLitePath != filepath.Join(tempHome, ".local", "share", "reelforge", "jobs.db") {
		t.Fatalf("unexpected sqlite path %q", cfg.Store.SQLitePath)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7590" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.LogDir, filepath.Dir(cfg.Store.SQLitePath)} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reelforge.toml")

	type payload struct {
		Workflow struct {
			Workers           int            `toml:"workers"`
			HeartbeatInterval int            `toml:"heartbeat_interval"`
			LeaseTimeout      int            `toml:"lease_timeout"`
			StageTimeouts     map[string]int `toml:"stage_timeouts"`
		} `toml:"workflow"`
		Commands struct {
			Render []string `toml:"render"`
		} `toml:"commands"`
	}
	custom := payload{}
	custom.Workflow.Workers = 4
	custom.Workflow.HeartbeatInterval = 20
	custom.Workflow.LeaseTimeout = 200
	custom.Workflow.StageTimeouts = map[string]int{"Generating_Plan": 90}
	custom.Commands.Render = []string{" render ", "{input}", ""}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Workflow.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Workflow.Workers)
	}
	if got := cfg.StageTimeout(stage.GeneratingPlan); got != 90*time.Second {
		t.Fatalf("expected 90s plan timeout, got %s", got)
	}
	if got := cfg.StageTimeout(stage.Transcribing); got != time.Hour {
		t.Fatalf("expected default transcribing timeout, got %s", got)
	}
	if got := cfg.StageTimeout(stage.Uploaded); got != 30*time.Minute {
		t.Fatalf("expected fallback timeout, got %s", got)
	}
	if len(cfg.Commands.Render) != 2 || cfg.Commands.Render[0] != "render" {
		t.Fatalf("render command not normalized: %q", cfg.Commands.Render)
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("REELFORGE_DATABASE_URL", "postgres://u:p@localhost:5432/reelforge")
	t.Setenv("REELFORGE_API_TOKEN", "secret")
	t.Setenv("GOOGLE_APPS_SCRIPT_API_URL", "https://script.example.com/exec")
	t.Setenv("REELFORGE_NTFY_TOPIC", "https://ntfy.example.com/reelforge")
	t.Setenv("REELFORGE_LLM_API_KEY", "sk-test")

	configPath := filepath.Join(t.TempDir(), "reelforge.toml")
	if err := os.WriteFile(configPath, []byte("[store]\nbackend = \"postgres\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store.DatabaseURL != "postgres://u:p@localhost:5432/reelforge" {
		t.Errorf("database url from env not applied: %q", cfg.Store.DatabaseURL)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Errorf("api token from env not applied: %q", cfg.Paths.APIToken)
	}
	if cfg.TranscriptStore.URL != "https://script.example.com/exec" {
		t.Errorf("transcript store url from env not applied: %q", cfg.TranscriptStore.URL)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example.com/reelforge" {
		t.Errorf("ntfy topic from env not applied: %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Planner.APIKey != "sk-test" {
		t.Errorf("planner key from env not applied: %q", cfg.Planner.APIKey)
	}
	if cfg.Planner.Enabled() {
		t.Error("planner should stay disabled without a model")
	}
}

func TestRetryPolicyFromWorkflow(t *testing.T) {
	cfg := config.Default()
	policy := cfg.RetryPolicy()
	if policy.MaxAttempts != 3 || policy.BaseDelay != time.Second {
		t.Fatalf("unexpected default policy %+v", policy)
	}
	cfg.Workflow.MaxAttempts = 5
	cfg.Workflow.RetryBaseDelayMs = 250
	policy = cfg.RetryPolicy()
	if policy.MaxAttempts != 5 || policy.BaseDelay != 250*time.Millisecond {
		t.Fatalf("unexpected custom policy %+v", policy)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[workflow.stage_timeouts]") {
		t.Fatalf("sample config missing stage timeouts: %s", contents)
	}

	cfg := config.Default()
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
	if !strings.Contains(cfg.Paths.WorkDir, "reelforge") {
		t.Fatalf("expected work dir to contain reelforge, got %q", cfg.Paths.WorkDir)
	}
	if len(cfg.Commands.Render) == 0 {
		t.Fatal("expected sample render command")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero workers", func(c *config.Config) { c.Workflow.Workers = 0 }},
		{"zero heartbeat", func(c *config.Config) { c.Workflow.HeartbeatInterval = 0 }},
		{"lease not above heartbeat", func(c *config.Config) { c.Workflow.LeaseTimeout = c.Workflow.HeartbeatInterval }},
		{"zero attempts", func(c *config.Config) { c.Workflow.MaxAttempts = 0 }},
		{"unknown stage timeout", func(c *config.Config) { c.Workflow.StageTimeouts["mixing"] = 10 }},
		{"negative stage timeout", func(c *config.Config) { c.Workflow.StageTimeouts["rendering"] = -1 }},
		{"unknown backend", func(c *config.Config) { c.Store.Backend = "mongo" }},
		{"postgres without url", func(c *config.Config) { c.Store.Backend = config.BackendPostgres }},
		{"relative transcript url", func(c *config.Config) { c.TranscriptStore.URL = "/exec" }},
		{"placeholder program", func(c *config.Config) { c.Commands.Render = []string{"{input}"} }},
		{"relative planner url", func(c *config.Config) {
			c.Planner.APIKey, c.Planner.Model, c.Planner.BaseURL = "key", "demo", "chat"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
