package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reelforge/internal/fileutil"
	"reelforge/internal/logging"
	"reelforge/internal/plan"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
	"reelforge/internal/stageexec"
	"reelforge/internal/transcript"
)

func (p *Pipeline) verifyUpload(ctx context.Context, job *queue.Job, _ stageexec.Outputs) stageexec.Result {
	fail := func(kind services.Kind, msg string, err error) stageexec.Result {
		return stageexec.Err(&services.Failure{Kind: kind, Stage: stage.Uploaded, Operation: "verify upload", Message: msg, Cause: err})
	}
	source := strings.TrimSpace(job.SourcePath)
	if source == "" {
		return fail(services.KindValidation, "job has no source video", nil)
	}
	info, err := os.Stat(source)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fail(services.KindValidation, "source video not found: "+source, err)
	case err != nil:
		return fail(services.KindStorage, "", err)
	case info.IsDir():
		return fail(services.KindValidation, source+" is a directory", nil)
	case info.Size() == 0:
		return fail(services.KindValidation, source+" is empty", nil)
	}

	if want := strings.ToLower(job.VideoMetadata.Checksum); want != "" {
		sum, _, err := fileutil.SHA256File(source)
		if err != nil {
			return fail(services.KindStorage, "", err)
		}
		if sum != want {
			return fail(services.KindValidation, "source checksum does not match the recorded metadata", nil)
		}
	}
	if err := os.MkdirAll(p.WorkDir(job.ID), 0o755); err != nil {
		return fail(services.KindStorage, "create work directory", err)
	}
	return stageexec.Ok(source)
}

func (p *Pipeline) autoEdit(ctx context.Context, _ *queue.Job, prior stageexec.Outputs) stageexec.Result {
	source, failure := input(prior, stage.AutoEditing, stage.Uploaded)
	if failure != nil {
		return stageexec.Err(failure)
	}
	edited, err := p.collab.AutoEditor.AutoEdit(ctx, source)
	return stageexec.FromError(edited, err, services.KindProcessing)
}

func (p *Pipeline) transcribe(ctx context.Context, job *queue.Job, prior stageexec.Outputs) stageexec.Result {
	video, failure := input(prior, stage.Transcribing, stage.AutoEditing)
	if failure != nil {
		return stageexec.Err(failure)
	}
	tr, err := p.collab.Transcriber.Transcribe(ctx, video)
	if err != nil {
		return stageexec.FromError("", err, services.KindExternalService)
	}
	if err := tr.Validate(); err != nil {
		return stageexec.Err(&services.Failure{Kind: services.KindValidation, Stage: stage.Transcribing, Operation: "check transcript", Cause: err})
	}

	path := p.artifact(job.ID, TranscriptFile)
	if failure := writeArtifact(stage.Transcribing, path, tr); failure != nil {
		return stageexec.Err(failure)
	}
	srt := p.artifact(job.ID, SubtitleFile)
	if err := os.WriteFile(srt, []byte(transcript.FormatSRT(tr.Segments)), 0o644); err != nil {
		return stageexec.Err(&services.Failure{Kind: services.KindStorage, Stage: stage.Transcribing, Operation: "write subtitles", Cause: err})
	}
	p.log(ctx).Info("transcript saved",
		logging.Int("segments", len(tr.Segments)),
		logging.String("language", tr.Language),
		logging.String("path", path),
	)
	return stageexec.Ok(path)
}

func (p *Pipeline) storeTranscript(ctx context.Context, job *queue.Job, prior stageexec.Outputs) stageexec.Result {
	path, failure := input(prior, stage.StoringTranscript, stage.Transcribing)
	if failure != nil {
		return stageexec.Err(failure)
	}
	var tr transcript.Transcript
	if failure := readArtifact(stage.StoringTranscript, path, &tr); failure != nil {
		return stageexec.Err(failure)
	}
	ref, err := p.collab.TranscriptStore.StoreTranscript(ctx, job.ID, tr.Segments)
	return stageexec.FromError(ref, err, services.KindStorage)
}

func (p *Pipeline) detectHighlights(ctx context.Context, job *queue.Job, prior stageexec.Outputs) stageexec.Result {
	transcriptPath, failure := input(prior, stage.DetectingHighlights, stage.Transcribing)
	if failure != nil {
		return stageexec.Err(failure)
	}
	highlights, err := p.collab.HighlightDetector.DetectHighlights(ctx, transcriptPath)
	if err != nil {
		return stageexec.FromError("", err, services.KindExternalService)
	}
	if highlights == nil {
		highlights = []plan.Highlight{}
	}
	if len(highlights) == 0 {
		logging.WarnWithContext(p.log(ctx), "no highlights detected", "highlights_empty",
			logging.String(logging.FieldErrorHint, "the plan will have no text overlays"),
			logging.String(logging.FieldImpact, "video published without emphasis overlays"),
		)
	}
	path := p.artifact(job.ID, HighlightsFile)
	if failure := writeArtifact(stage.DetectingHighlights, path, highlights); failure != nil {
		return stageexec.Err(failure)
	}
	return stageexec.Ok(path)
}

func (p *Pipeline) generatePlan(ctx context.Context, job *queue.Job, prior stageexec.Outputs) stageexec.Result {
	transcriptPath, failure := input(prior, stage.GeneratingPlan, stage.Transcribing)
	if failure != nil {
		return stageexec.Err(failure)
	}
	highlightsPath, failure := input(prior, stage.GeneratingPlan, stage.DetectingHighlights)
	if failure != nil {
		return stageexec.Err(failure)
	}
	var (
		tr         transcript.Transcript
		highlights []plan.Highlight
	)
	if failure := readArtifact(stage.GeneratingPlan, transcriptPath, &tr); failure != nil {
		return stageexec.Err(failure)
	}
	if failure := readArtifact(stage.GeneratingPlan, highlightsPath, &highlights); failure != nil {
		return stageexec.Err(failure)
	}

	duration := job.VideoMetadata.DurationSeconds
	generated, err := p.collab.PlanGenerator.GeneratePlan(ctx, tr, highlights, duration)
	if err != nil {
		return stageexec.FromError("", err, services.KindExternalService)
	}
	if generated.SourceDuration == 0 {
		generated.SourceDuration = duration
	}

	report := plan.Validate(generated)
	logger := p.log(ctx)
	for _, issue := range report.Warnings() {
		logging.WarnWithContext(logger, issue.Message, "plan_warning",
			logging.String("code", issue.Code),
			logging.String(logging.FieldErrorHint, "review the generated plan"),
			logging.String(logging.FieldImpact, "plan accepted as-is"),
		)
	}
	if err := report.Err(); err != nil {
		return stageexec.FromError("", err, services.KindProcessing)
	}

	path := p.artifact(job.ID, PlanFile)
	if failure := writeArtifact(stage.GeneratingPlan, path, generated); failure != nil {
		return stageexec.Err(failure)
	}
	logger.Info("plan saved",
		logging.Int("segments", len(generated.Segments)),
		logging.Int("highlights", len(generated.Highlights)),
		logging.Float64("output_seconds", generated.Duration()),
	)
	return stageexec.Ok(path)
}

func (p *Pipeline) acquireBroll(ctx context.Context, job *queue.Job, prior stageexec.Outputs) stageexec.Result {
	planPath, failure := input(prior, stage.AcquiringBroll, stage.GeneratingPlan)
	if failure != nil {
		return stageexec.Err(failure)
	}
	var editPlan plan.Plan
	if failure := readArtifact(stage.AcquiringBroll, planPath, &editPlan); failure != nil {
		return stageexec.Err(failure)
	}

	clips := []plan.BrollClip{}
	terms, target := editPlan.BrollQueries()
	if len(terms) > 0 {
		if p.collab.BrollSource == nil {
			return stageexec.Err(&services.Failure{
				Kind:      services.KindValidation,
				Stage:     stage.AcquiringBroll,
				Operation: "acquire b-roll",
				Message:   "no b-roll source configured",
			})
		}
		fetched, err := p.collab.BrollSource.AcquireBroll(ctx, terms, target)
		if err != nil {
			return stageexec.FromError("", err, services.KindExternalService)
		}
		clips = append(clips, fetched...)
	}

	path := p.artifact(job.ID, BrollFile)
	if failure := writeArtifact(stage.AcquiringBroll, path, clips); failure != nil {
		return stageexec.Err(failure)
	}
	p.log(ctx).Info("b-roll saved",
		logging.Int("terms", len(terms)),
		logging.Int("clips", len(clips)),
		logging.Float64("target_seconds", target),
	)
	return stageexec.Ok(path)
}

func (p *Pipeline) render(ctx context.Context, _ *queue.Job, prior stageexec.Outputs) stageexec.Result {
	video, failure := input(prior, stage.Rendering, stage.AutoEditing)
	if failure != nil {
		return stageexec.Err(failure)
	}
	planPath, failure := input(prior, stage.Rendering, stage.GeneratingPlan)
	if failure != nil {
		return stageexec.Err(failure)
	}
	var editPlan plan.Plan
	if failure := readArtifact(stage.Rendering, planPath, &editPlan); failure != nil {
		return stageexec.Err(failure)
	}

	// A skipped b-roll stage records no output; render without clips.
	clips := []plan.BrollClip{}
	if brollPath := strings.TrimSpace(prior[stage.AcquiringBroll]); brollPath != "" {
		if failure := readArtifact(stage.Rendering, brollPath, &clips); failure != nil {
			return stageexec.Err(failure)
		}
	}

	final, err := p.collab.Renderer.Render(ctx, video, editPlan, clips)
	return stageexec.FromError(final, err, services.KindProcessing)
}

func (p *Pipeline) publish(ctx context.Context, job *queue.Job, prior stageexec.Outputs) stageexec.Result {
	final, failure := input(prior, stage.Uploading, stage.Rendering)
	if failure != nil {
		return stageexec.Err(failure)
	}
	meta := PublishMetadata{
		JobID:           job.ID,
		OwnerID:         job.OwnerID,
		DurationSeconds: job.VideoMetadata.DurationSeconds,
		SourceName:      filepath.Base(job.SourcePath),
	}
	if planPath := strings.TrimSpace(prior[stage.GeneratingPlan]); planPath != "" {
		var editPlan plan.Plan
		if failure := readArtifact(stage.Uploading, planPath, &editPlan); failure == nil {
			meta.Title = editPlan.Title
			meta.DurationSeconds = editPlan.Duration()
		}
	}
	url, err := p.collab.Publisher.Publish(ctx, final, meta)
	if err != nil {
		return stageexec.FromError("", err, services.KindExternalService)
	}
	if strings.TrimSpace(url) == "" {
		return stageexec.Err(&services.Failure{
			Kind:      services.KindExternalService,
			Stage:     stage.Uploading,
			Operation: "publish",
			Message:   fmt.Sprintf("publisher returned no URL for %s", filepath.Base(final)),
		})
	}
	return stageexec.Ok(url)
}
