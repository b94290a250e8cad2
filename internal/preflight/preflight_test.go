package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"reelforge/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("disk", dir, 1); !result.Passed {
		t.Fatalf("expected pass for 1 byte, got %s", result.Detail)
	}
	if result := CheckFreeSpace("disk", dir, ^uint64(0)); result.Passed {
		t.Fatal("expected failure for an impossible requirement")
	}
	if result := CheckFreeSpace("disk", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	if result := CheckEndpoint(context.Background(), "store", srv.URL+"/exec"); !result.Passed {
		t.Fatalf("expected 405 to count as reachable, got %s", result.Detail)
	}
	if result := CheckEndpoint(context.Background(), "store", srv.URL+"/broken"); result.Passed {
		t.Fatal("expected 502 to fail")
	}
	if result := CheckEndpoint(context.Background(), "store", ""); result.Passed {
		t.Fatal("expected failure for missing url")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_Directories(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected work, log and disk checks, got %d", len(results))
	}
	for _, r := range results[:2] {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_IncludesTranscriptStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.LogDir = t.TempDir()
	cfg.TranscriptStore.URL = srv.URL

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected work, log and store checks, got %d", len(results))
	}
	if results[0].Passed {
		t.Fatal("expected missing work dir to fail")
	}
	if last := results[2]; last.Name != "Transcript store" || !last.Passed {
		t.Fatalf("unexpected store result %+v", last)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	cfg := config.Default()
	statuses := CheckSystemDeps(&cfg)
	if len(statuses) != 8 {
		t.Fatalf("expected 8 statuses, got %d", len(statuses))
	}
	for _, s := range statuses[1:] {
		if s.Available || s.Detail != "command not configured" {
			t.Fatalf("expected unconfigured command, got %+v", s)
		}
	}
}
