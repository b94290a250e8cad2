package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reelforge/internal/queue"
	"reelforge/internal/services/command"
	"reelforge/internal/services/planner"
	"reelforge/internal/stage"
	"reelforge/internal/testsupport"
)

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "reelforged-1.log")
	second := filepath.Join(dir, "reelforged-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, currentLogName))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "reelforged-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
}

func TestRuntimeReportsCollaboratorHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMemoryStore())
	rt, err := newRuntime(cfg, queue.NewMemoryStore(), Collaborators(cfg), nil)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()

	health := rt.Orchestrator.Health(context.Background())
	if len(health) != stage.Default().Len()-2 {
		t.Fatalf("expected health for every collaborator stage, got %d", len(health))
	}
	if broll := health[stage.AcquiringBroll]; broll.Ready || broll.Detail != "not configured" {
		t.Fatalf("unexpected b-roll health %+v", broll)
	}
	if store := health[stage.StoringTranscript]; store.Ready {
		t.Fatalf("transcript store without url should not be ready: %+v", store)
	}
}

func TestCollaboratorsUsePlannerForStagesWithoutCommands(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMemoryStore())
	cfg.Planner.APIKey = "sk-test"
	cfg.Planner.Model = "demo-model"
	cfg.Commands.GeneratePlan = []string{"generate-plan"}

	collab := Collaborators(cfg)
	if _, ok := collab.HighlightDetector.(*planner.Planner); !ok {
		t.Fatalf("expected planner highlight detector, got %T", collab.HighlightDetector)
	}
	if _, ok := collab.PlanGenerator.(*command.Client); !ok {
		t.Fatalf("configured plan command should win, got %T", collab.PlanGenerator)
	}

	cfg.Planner.APIKey = ""
	if _, ok := Collaborators(cfg).HighlightDetector.(*command.Client); !ok {
		t.Fatal("unconfigured planner should leave the command client in place")
	}
}

func TestNewRuntimeOpensConfiguredStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rt, err := NewRuntime(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.Store.(*queue.SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", rt.Store)
	}
	if rt.Manager == nil || rt.Orchestrator == nil {
		t.Fatal("runtime not wired")
	}
}

func TestPruneWorkDirsKeepsActiveJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMemoryStore())
	cfg.Paths.WorkRetentionDays = 1
	store := queue.NewMemoryStore()
	job := testsupport.NewJob(t, store, "carol")

	active := filepath.Join(cfg.Paths.WorkDir, job.ID)
	orphan := filepath.Join(cfg.Paths.WorkDir, "deleted-job")
	stale := time.Now().Add(-72 * time.Hour)
	for _, dir := range []string{active, orphan} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(dir, stale, stale); err != nil {
			t.Fatal(err)
		}
	}

	pruneWorkDirs(context.Background(), nil, cfg, store)

	if _, err := os.Stat(active); err != nil {
		t.Fatalf("queued job directory should be kept: %v", err)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("orphaned directory should be removed, stat err = %v", err)
	}
}
