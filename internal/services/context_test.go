package services_test

import (
	"context"
	"testing"

	"reelforge/internal/services"
)

func TestJobValuesRoundTrip(t *testing.T) {
	ctx := services.WithRequestID(
		services.WithAttempt(
			services.WithStage(services.WithJobID(context.Background(), "job-42"), "rendering"),
			0),
		"req-123")

	checks := map[string]func() (string, bool){
		"job-42":    func() (string, bool) { return services.JobIDFromContext(ctx) },
		"rendering": func() (string, bool) { return services.StageFromContext(ctx) },
		"req-123":   func() (string, bool) { return services.RequestIDFromContext(ctx) },
	}
	for want, get := range checks {
		if got, ok := get(); !ok || got != want {
			t.Fatalf("expected %q, got %q (ok=%v)", want, got, ok)
		}
	}
	if attempt, ok := services.AttemptFromContext(ctx); !ok || attempt != 0 {
		t.Fatalf("first attempt should be recorded as 0, got %d (ok=%v)", attempt, ok)
	}
}

func TestEmptyValuesAreNotRecorded(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "job-1")
	ctx = services.WithJobID(ctx, "")
	if id, _ := services.JobIDFromContext(ctx); id != "job-1" {
		t.Fatalf("empty id should not mask the outer one, got %q", id)
	}
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage")
	}
	if _, ok := services.AttemptFromContext(context.Background()); ok {
		t.Fatal("expected no attempt")
	}
}
