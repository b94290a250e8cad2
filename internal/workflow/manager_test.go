package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
	"reelforge/internal/stageexec"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

func startManager(t *testing.T, h *harness) *workflow.Manager {
	t.Helper()
	mgr := workflow.NewManager(h.cfg, h.store, h.orch, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr
}

func TestManagerProcessesSubmittedJobs(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithWorkers(2))
	mgr := startManager(t, h)

	jobs := []*queue.Job{
		testsupport.NewJob(t, h.store, "creator-a"),
		testsupport.NewJob(t, h.store, "creator-b"),
		testsupport.NewJob(t, h.store, "creator-c"),
	}
	for _, job := range jobs {
		if err := mgr.Submit(context.Background(), job.ID); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	for _, job := range jobs {
		done := waitForStatus(t, h.store, job.ID, queue.StatusCompleted)
		if done.PublishedURL != publicURL(job.ID) {
			t.Fatalf("unexpected url %q", done.PublishedURL)
		}
	}
	if got := h.counter.count(stage.Uploaded); got != len(jobs) {
		t.Fatalf("expected each job to run once, got %d uploaded calls", got)
	}

	summary := mgr.Status(context.Background())
	if !summary.Running || summary.Workers != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.QueueStats[queue.StatusCompleted] != len(jobs) {
		t.Fatalf("unexpected stats %+v", summary.QueueStats)
	}
}

func TestManagerPicksUpQueuedJobsWithoutSubmit(t *testing.T) {
	h := newHarness(t, nil)
	job := testsupport.NewJob(t, h.store, "creator-d")
	startManager(t, h)
	waitForStatus(t, h.store, job.ID, queue.StatusCompleted)
}

func TestManagerReclaimsExpiredLease(t *testing.T) {
	h := newHarness(t, nil)
	job := testsupport.NewJob(t, h.store, "creator-e")
	if _, err := h.store.Update(context.Background(), job.ID, func(j *queue.Job) error {
		if err := j.Claim("crashed-host:9/run", time.Second, time.Now().Add(-time.Hour)); err != nil {
			return err
		}
		return j.MarkProcessing()
	}); err != nil {
		t.Fatalf("seed stale lease: %v", err)
	}
	startManager(t, h)
	waitForStatus(t, h.store, job.ID, queue.StatusCompleted)
}

func TestManagerSubmitValidation(t *testing.T) {
	h := newHarness(t, nil)
	mgr := workflow.NewManager(h.cfg, h.store, h.orch, nil)

	if err := mgr.Submit(context.Background(), "nope"); !queue.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	job := testsupport.NewJob(t, h.store, "creator-f")
	if _, err := h.orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := mgr.Submit(context.Background(), job.ID); !errors.Is(err, queue.ErrJobTerminal) {
		t.Fatalf("expected ErrJobTerminal, got %v", err)
	}
}

func TestManagerCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, map[stage.ID]stageexec.HandlerFunc{
		stage.Rendering: func(ctx context.Context, _ *queue.Job, _ stageexec.Outputs) stageexec.Result {
			close(started)
			<-ctx.Done()
			return stageexec.FromError("", ctx.Err(), services.KindProcessing)
		},
	})
	mgr := startManager(t, h)
	job := testsupport.NewJob(t, h.store, "creator-g")
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("rendering never started")
	}
	if _, err := mgr.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	done := waitForStatus(t, h.store, job.ID, queue.StatusFailed)
	if done.Error == nil || done.Error.Kind != string(services.KindCancelled) || done.Error.Stage != stage.Rendering {
		t.Fatalf("unexpected error %+v", done.Error)
	}
	if h.counter.count(stage.Uploading) != 0 {
		t.Fatal("stages after a cancel must not run")
	}
}

func TestManagerCancelsQueuedJobImmediately(t *testing.T) {
	h := newHarness(t, nil)
	mgr := workflow.NewManager(h.cfg, h.store, h.orch, nil)
	job := testsupport.NewJob(t, h.store, "creator-h")

	cancelled, err := mgr.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != queue.StatusFailed || cancelled.Error.Stage != stage.Uploaded || cancelled.Error.Kind != string(services.KindCancelled) {
		t.Fatalf("unexpected job %+v", cancelled)
	}
	if _, err := mgr.Cancel(context.Background(), job.ID); !errors.Is(err, queue.ErrJobTerminal) {
		t.Fatalf("expected ErrJobTerminal cancelling twice, got %v", err)
	}
}

func TestManagerStopLeavesJobResumable(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, map[stage.ID]stageexec.HandlerFunc{
		stage.AutoEditing: func(ctx context.Context, _ *queue.Job, _ stageexec.Outputs) stageexec.Result {
			close(started)
			<-ctx.Done()
			return stageexec.FromError("", ctx.Err(), services.KindProcessing)
		},
	})
	mgr := workflow.NewManager(h.cfg, h.store, h.orch, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	job := testsupport.NewJob(t, h.store, "creator-i")
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("auto-editing never started")
	}
	mgr.Stop()

	stopped, err := h.store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stopped.Status != queue.StatusProcessing || stopped.Lease != nil || stopped.Error != nil {
		t.Fatalf("expected resumable job, got %+v", stopped)
	}
	if mgr.Status(context.Background()).Running {
		t.Fatal("manager should report stopped")
	}
}
