package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelforge/internal/fileutil"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
	"reelforge/internal/stageexec"
	"reelforge/internal/workflow"
)

// Artifact file names under the job work directory.
const (
	TranscriptFile = "transcript.json"
	SubtitleFile   = "transcript.srt"
	HighlightsFile = "highlights.json"
	PlanFile       = "plan.json"
	BrollFile      = "broll.json"
)

// Pipeline adapts collaborators to stage handlers and persists their
// structured results as JSON artifacts.
type Pipeline struct {
	workRoot string
	collab   Collaborators
	logger   *slog.Logger
}

// New constructs a pipeline writing artifacts under workRoot/<job id>.
func New(workRoot string, collab Collaborators, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		workRoot: workRoot,
		collab:   collab,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Checker is implemented by collaborators that can report readiness.
type Checker interface {
	Check(ctx context.Context, id stage.ID) stage.Health
}

// handler pairs a stage handler with the collaborator it calls so the
// orchestrator can report collaborator health.
type handler struct {
	stageexec.HandlerFunc
	id           stage.ID
	collaborator any
}

func (h handler) HealthCheck(ctx context.Context) stage.Health {
	if h.collaborator == nil {
		return stage.Unhealthy(h.id, "not configured")
	}
	if checker, ok := h.collaborator.(Checker); ok {
		return checker.Check(ctx, h.id)
	}
	return stage.Healthy(h.id)
}

// Handlers returns a handler for every stage of the default registry.
func (p *Pipeline) Handlers() workflow.Handlers {
	c := p.collab
	return workflow.Handlers{
		stage.Uploaded:            stageexec.HandlerFunc(p.verifyUpload),
		stage.AutoEditing:         handler{p.autoEdit, stage.AutoEditing, c.AutoEditor},
		stage.Transcribing:        handler{p.transcribe, stage.Transcribing, c.Transcriber},
		stage.StoringTranscript:   handler{p.storeTranscript, stage.StoringTranscript, c.TranscriptStore},
		stage.DetectingHighlights: handler{p.detectHighlights, stage.DetectingHighlights, c.HighlightDetector},
		stage.GeneratingPlan:      handler{p.generatePlan, stage.GeneratingPlan, c.PlanGenerator},
		stage.AcquiringBroll:      handler{p.acquireBroll, stage.AcquiringBroll, c.BrollSource},
		stage.Rendering:           handler{p.render, stage.Rendering, c.Renderer},
		stage.Uploading:           handler{p.publish, stage.Uploading, c.Publisher},
		stage.Completed:           stageexec.HandlerFunc(p.complete),
	}
}

// WorkDir returns the artifact directory for a job.
func (p *Pipeline) WorkDir(jobID string) string {
	return filepath.Join(p.workRoot, jobID)
}

func (p *Pipeline) artifact(jobID, name string) string {
	return filepath.Join(p.WorkDir(jobID), name)
}

func (p *Pipeline) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, p.logger)
}

// input returns the recorded output of an earlier stage.
func input(prior stageexec.Outputs, current, from stage.ID) (string, *services.Failure) {
	value := strings.TrimSpace(prior[from])
	if value == "" {
		return "", &services.Failure{
			Kind:      services.KindProcessing,
			Stage:     current,
			Operation: "resolve input",
			Message:   fmt.Sprintf("no output recorded for %s", from),
		}
	}
	return value, nil
}

func writeArtifact(current stage.ID, path string, v any) *services.Failure {
	if err := fileutil.WriteJSONAtomic(path, v); err != nil {
		return &services.Failure{Kind: services.KindStorage, Stage: current, Operation: "write " + filepath.Base(path), Cause: err}
	}
	return nil
}

func readArtifact(current stage.ID, path string, v any) *services.Failure {
	err := fileutil.ReadJSON(path, v)
	if err == nil {
		return nil
	}
	// A missing or corrupt artifact is a pipeline defect; other read errors
	// are the disk's.
	kind := services.KindProcessing
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && !errors.Is(err, os.ErrNotExist) {
		kind = services.KindStorage
	}
	return &services.Failure{Kind: kind, Stage: current, Operation: "read " + filepath.Base(path), Cause: err}
}

// complete reports the public URL produced by the upload stage; recording
// it completes the job.
func (p *Pipeline) complete(_ context.Context, _ *queue.Job, prior stageexec.Outputs) stageexec.Result {
	url, failure := input(prior, stage.Completed, stage.Uploading)
	if failure != nil {
		return stageexec.Err(failure)
	}
	return stageexec.Ok(url)
}
