package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/api"
	"reelforge/internal/queue"
	"reelforge/internal/stage"
	"reelforge/internal/testsupport"
)

func TestJobServiceQueries(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemoryStore()
	job := testsupport.NewJob(t, store, "owner-9")
	clock := testsupport.NewFakeClock(job.CreatedAt.Add(10 * time.Second))
	svc := api.NewJobService(store, nil, clock)

	jobs, err := svc.List(ctx, queue.StatusQueued)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	none, err := svc.List(ctx, queue.StatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, none)

	status, err := svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(stage.Uploaded), status.Progress.Stage)
	assert.Equal(t, int64(10000), status.Progress.ElapsedMs)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["queued"])

	_, err = svc.Describe(ctx, "missing")
	assert.True(t, queue.IsNotFound(err))
}
