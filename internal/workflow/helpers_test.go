package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/notifications"
	"reelforge/internal/queue"
	"reelforge/internal/stage"
	"reelforge/internal/stageexec"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

type stubNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (s *stubNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *stubNotifier) Events() []notifications.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notifications.Event, len(s.events))
	copy(out, s.events)
	return out
}

type callCounter struct {
	mu    sync.Mutex
	calls map[stage.ID]int
}

func (c *callCounter) add(id stage.ID) {
	c.mu.Lock()
	if c.calls == nil {
		c.calls = make(map[stage.ID]int)
	}
	c.calls[id]++
	c.mu.Unlock()
}

func (c *callCounter) count(id stage.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func publicURL(jobID string) string {
	return "https://videos.example.com/v/" + jobID
}

// stubHandlers returns a handler per registry stage. Each succeeds with a
// predictable output unless overridden.
func stubHandlers(counter *callCounter, overrides map[stage.ID]stageexec.HandlerFunc) workflow.Handlers {
	handlers := make(workflow.Handlers)
	for _, def := range stage.Default().Definitions() {
		id := def.ID
		handlers[id] = stageexec.HandlerFunc(func(ctx context.Context, job *queue.Job, prior stageexec.Outputs) stageexec.Result {
			counter.add(id)
			if fn, ok := overrides[id]; ok {
				return fn(ctx, job, prior)
			}
			switch id {
			case stage.Uploading:
				return stageexec.Ok(publicURL(job.ID))
			case stage.Completed:
				return stageexec.Ok(prior[stage.Uploading])
			default:
				return stageexec.Ok(fmt.Sprintf("/work/%s/%s", job.ID, id))
			}
		})
	}
	return handlers
}

type harness struct {
	cfg      *config.Config
	store    *queue.MemoryStore
	notifier *stubNotifier
	sleeper  *testsupport.RecordingSleeper
	counter  *callCounter
	orch     *workflow.Orchestrator
}

func newHarness(t *testing.T, overrides map[stage.ID]stageexec.HandlerFunc, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithMemoryStore()}, opts...)
	h := &harness{
		cfg:      testsupport.NewConfig(t, opts...),
		store:    queue.NewMemoryStore(),
		notifier: &stubNotifier{},
		sleeper:  testsupport.NewRecordingSleeper(nil),
		counter:  &callCounter{},
	}
	orch, err := workflow.NewOrchestrator(h.cfg, h.store, stubHandlers(h.counter, overrides), nil,
		workflow.WithNotifier(h.notifier),
		workflow.WithSleeper(h.sleeper),
	)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	h.orch = orch
	return h
}

func waitForStatus(t *testing.T, store queue.Store, id string, want queue.Status) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status == want {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s, want %s", id, job.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
