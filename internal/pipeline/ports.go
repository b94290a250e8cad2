package pipeline

import (
	"context"

	"reelforge/internal/plan"
	"reelforge/internal/transcript"
)

// AutoEditor trims silence and dead air from the uploaded video.
type AutoEditor interface {
	AutoEdit(ctx context.Context, videoPath string) (string, error)
}

// Transcriber produces timed speech segments for a video.
type Transcriber interface {
	Transcribe(ctx context.Context, videoPath string) (transcript.Transcript, error)
}

// TranscriptStore persists the transcript externally and returns a
// reference to the stored copy.
type TranscriptStore interface {
	StoreTranscript(ctx context.Context, jobID string, segments []transcript.Segment) (string, error)
}

// HighlightDetector picks the moments worth emphasizing.
type HighlightDetector interface {
	DetectHighlights(ctx context.Context, transcriptPath string) ([]plan.Highlight, error)
}

// PlanGenerator turns the transcript and highlights into an editing plan.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, tr transcript.Transcript, highlights []plan.Highlight, durationSeconds float64) (plan.Plan, error)
}

// BrollSource fetches supplementary footage. Its stage is optional.
type BrollSource interface {
	AcquireBroll(ctx context.Context, searchTerms []string, targetDuration float64) ([]plan.BrollClip, error)
}

// Renderer produces the final video.
type Renderer interface {
	Render(ctx context.Context, videoPath string, p plan.Plan, clips []plan.BrollClip) (string, error)
}

// PublishMetadata describes the video being published.
type PublishMetadata struct {
	JobID           string  `json:"jobId"`
	OwnerID         string  `json:"ownerId"`
	Title           string  `json:"title,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
	SourceName      string  `json:"sourceName,omitempty"`
}

// Publisher uploads the final video and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, finalPath string, meta PublishMetadata) (string, error)
}

// Collaborators bundles every port the pipeline calls.
type Collaborators struct {
	AutoEditor        AutoEditor
	Transcriber       Transcriber
	TranscriptStore   TranscriptStore
	HighlightDetector HighlightDetector
	PlanGenerator     PlanGenerator
	BrollSource       BrollSource
	Renderer          Renderer
	Publisher         Publisher
}
