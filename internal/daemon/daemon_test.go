package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/api"
	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
	"reelforge/internal/stageexec"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

// okHandlers succeeds every stage. Stages listed in block wait for the run
// context to end.
func okHandlers(block ...stage.ID) workflow.Handlers {
	blocked := make(map[stage.ID]bool, len(block))
	for _, id := range block {
		blocked[id] = true
	}
	handlers := make(workflow.Handlers)
	for _, def := range stage.Default().Definitions() {
		id := def.ID
		handlers[id] = stageexec.HandlerFunc(func(ctx context.Context, job *queue.Job, prior stageexec.Outputs) stageexec.Result {
			if blocked[id] {
				<-ctx.Done()
				return stageexec.FromError("", context.Cause(ctx), services.KindProcessing)
			}
			switch id {
			case stage.Uploading:
				return stageexec.Ok("https://videos.example.com/v/" + job.ID)
			case stage.Completed:
				return stageexec.Ok(prior[stage.Uploading])
			default:
				return stageexec.Ok(fmt.Sprintf("/work/%s/%s", job.ID, id))
			}
		})
	}
	return handlers
}

type fixture struct {
	cfg    *config.Config
	store  *queue.MemoryStore
	daemon *daemon.Daemon
}

func newFixture(t *testing.T, handlers workflow.Handlers, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithMemoryStore()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workflow.QueuePollInterval = 1
	store := queue.NewMemoryStore()
	orch, err := workflow.NewOrchestrator(cfg, store, handlers, nil)
	require.NoError(t, err)
	mgr := workflow.NewManager(cfg, store, orch, nil)
	d, err := daemon.New(cfg, store, nil, mgr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return &fixture{cfg: cfg, store: store, daemon: d}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, f.daemon.Start(ctx))
}

func (f *fixture) client(t *testing.T, token string) *api.Client {
	t.Helper()
	client, err := api.NewClient(f.daemon.APIAddress(), token, nil)
	require.NoError(t, err)
	return client
}

func waitForJob(t *testing.T, client *api.Client, id string, want queue.Status) api.JobStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := client.JobStatus(context.Background(), id)
		require.NoError(t, err)
		if status.Status == string(want) {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s, want %s", id, status.Status, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t, okHandlers())
	f.start(t)

	status := f.daemon.Status(context.Background())
	assert.True(t, status.Running)
	assert.Equal(t, config.BackendMemory, status.StoreBackend)
	assert.NotEmpty(t, f.daemon.APIAddress())

	assert.Error(t, f.daemon.Start(context.Background()), "second start should fail")

	otherStore := queue.NewMemoryStore()
	other, err := daemon.New(f.cfg, otherStore, nil,
		workflow.NewManager(f.cfg, otherStore, mustOrchestrator(t, f.cfg, otherStore), nil))
	require.NoError(t, err)
	assert.Error(t, other.Start(context.Background()), "lock should block a second daemon")

	f.daemon.Stop()
	assert.False(t, f.daemon.Status(context.Background()).Running)
}

func mustOrchestrator(t *testing.T, cfg *config.Config, store queue.Store) *workflow.Orchestrator {
	t.Helper()
	orch, err := workflow.NewOrchestrator(cfg, store, okHandlers(), nil)
	require.NoError(t, err)
	return orch
}

func TestAPIJobLifecycle(t *testing.T) {
	f := newFixture(t, okHandlers())
	job := testsupport.NewJob(t, f.store, "owner-1")
	f.start(t)
	client := f.client(t, "")
	ctx := context.Background()

	jobs, err := client.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	fetched, err := client.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", fetched.OwnerID)
	assert.Equal(t, testsupport.SampleMetadata().Format, fetched.Video.Format)

	_, err = client.Submit(ctx, job.ID)
	require.NoError(t, err)

	status := waitForJob(t, client, job.ID, queue.StatusCompleted)
	assert.Equal(t, 100, status.Progress.Percent)
	assert.Equal(t, "https://videos.example.com/v/"+job.ID, status.PublishedURL)

	completed, err := client.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, completed.Stages, stage.Default().Len())

	_, err = client.Submit(ctx, job.ID)
	assert.ErrorIs(t, err, queue.ErrJobTerminal)

	daemonStatus, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, daemonStatus.Running)
	assert.Equal(t, 1, daemonStatus.Workflow.QueueStats[string(queue.StatusCompleted)])
	assert.Empty(t, daemonStatus.Workflow.StageHealth)
	assert.NotEmpty(t, daemonStatus.Dependencies)
}

func TestAPIUnknownJob(t *testing.T) {
	f := newFixture(t, okHandlers())
	f.start(t)
	client := f.client(t, "")

	_, err := client.GetJob(context.Background(), "missing")
	assert.True(t, queue.IsNotFound(err), "expected not found, got %v", err)

	_, err = client.JobStatus(context.Background(), "missing")
	assert.True(t, queue.IsNotFound(err))

	_, err = client.Cancel(context.Background(), "missing")
	assert.True(t, queue.IsNotFound(err))
}

func TestAPIRejectsUnknownStatusFilter(t *testing.T) {
	f := newFixture(t, okHandlers())
	f.start(t)
	client := f.client(t, "")

	_, err := client.ListJobs(context.Background(), queue.Status("paused"))
	var statusErr *api.StatusError
	require.True(t, errors.As(err, &statusErr), "expected StatusError, got %v", err)
	assert.Equal(t, 400, statusErr.StatusCode)
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t, okHandlers(), testsupport.WithAPIToken("secret"))
	f.start(t)

	_, err := f.client(t, "").ListJobs(context.Background())
	var statusErr *api.StatusError
	require.True(t, errors.As(err, &statusErr), "expected StatusError, got %v", err)
	assert.Equal(t, 401, statusErr.StatusCode)

	_, err = f.client(t, "wrong").ListJobs(context.Background())
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 401, statusErr.StatusCode)

	jobs, err := f.client(t, "secret").ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestAPICancelRunningJob(t *testing.T) {
	f := newFixture(t, okHandlers(stage.Transcribing))
	job := testsupport.NewJob(t, f.store, "owner-2")
	f.start(t)
	client := f.client(t, "")
	ctx := context.Background()

	_, err := client.Submit(ctx, job.ID)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := client.JobStatus(ctx, job.ID)
		require.NoError(t, err)
		if status.Progress.Stage == string(stage.Transcribing) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never reached transcribing: %+v", status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	_, err = client.Cancel(ctx, job.ID)
	require.NoError(t, err)

	status := waitForJob(t, client, job.ID, queue.StatusFailed)
	require.NotNil(t, status.Error)
	assert.Equal(t, "cancelled", status.Error.Kind)
}
