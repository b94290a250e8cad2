package deps

import (
	"os"
	"path/filepath"
	"testing"

	"reelforge/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present || results[0].Detail != "" {
		t.Fatalf("expected first requirement available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" || results[1].Satisfied() {
		t.Fatalf("expected missing binary to be unavailable, got %#v", results[1])
	}
	if results[2].Detail != "command not configured" || !results[2].Satisfied() {
		t.Fatalf("expected optional unset command to be satisfied, got %#v", results[2])
	}
}

func TestRequirementsFollowStageFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Commands.Render = []string{"render-video", "{input}"}
	reqs := Requirements(&cfg)
	if len(reqs) != 8 {
		t.Fatalf("expected ffprobe plus 7 commands, got %d", len(reqs))
	}
	if reqs[0].Command != "ffprobe" || reqs[0].Optional {
		t.Fatalf("unexpected ffprobe requirement %#v", reqs[0])
	}
	for _, req := range reqs {
		switch req.Name {
		case "Acquiring Broll":
			if !req.Optional {
				t.Fatal("b-roll fetcher should be optional")
			}
		case "Rendering":
			if req.Command != "render-video" || req.Optional {
				t.Fatalf("unexpected render requirement %#v", req)
			}
		}
	}
}

func TestDisplayCommand(t *testing.T) {
	if got := DisplayCommand(Status{Command: "/usr/local/bin/render-video"}); got != "render-video" {
		t.Fatalf("unexpected display %q", got)
	}
	if got := DisplayCommand(Status{}); got != "-" {
		t.Fatalf("unexpected display %q", got)
	}
}
