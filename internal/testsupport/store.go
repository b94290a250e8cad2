package testsupport

import (
	"context"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/queue"
)

// MustOpenStore opens the SQLite job store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.SQLiteStore {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SampleMetadata returns valid metadata for a short 1080p clip.
func SampleMetadata() queue.VideoMetadata {
	return queue.VideoMetadata{
		DurationSeconds: 120,
		Resolution:      queue.Resolution{Width: 1920, Height: 1080},
		Format:          "mp4",
		SizeBytes:       52_428_800,
	}
}

// NewJob creates a queued job owned by ownerID in store.
func NewJob(t testing.TB, store queue.Store, ownerID string) *queue.Job {
	t.Helper()

	job, err := queue.CreateJob(context.Background(), store, queue.NewJobRequest{
		OwnerID:    ownerID,
		SourcePath: "/uploads/" + ownerID + "/raw.mp4",
		Metadata:   SampleMetadata(),
	})
	if err != nil {
		t.Fatalf("queue.CreateJob: %v", err)
	}
	return job
}
