package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"reelforge/internal/config"
)

// ConfigOption adjusts a test config. base is the temp directory that
// holds the config's work, log and database paths.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns the default config rooted in a fresh temp directory,
// using SQLite and with every outbound integration switched off.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Store = config.Store{Backend: config.BackendSQLite, SQLitePath: filepath.Join(base, "db", "jobs.db")}
	cfg.Notifications.NtfyTopic = ""
	cfg.TranscriptStore.URL = ""

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp directory behind a NewConfig result.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}

func WithMemoryStore() ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) { cfg.Store.Backend = config.BackendMemory }
}

func WithWorkers(n int) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) { cfg.Workflow.Workers = n }
}

// WithAPIToken requires bearer auth on the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) { cfg.Paths.APIToken = token }
}

// WithStubbedBinaries puts no-op executables with the given names first on
// PATH for the rest of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, base string, _ *config.Config) {
		t.Helper()
		binDir := filepath.Join(base, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
