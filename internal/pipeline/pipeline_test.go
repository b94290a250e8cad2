package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"reelforge/internal/fileutil"
	"reelforge/internal/pipeline"
	"reelforge/internal/plan"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
	"reelforge/internal/stageexec"
	"reelforge/internal/testsupport"
	"reelforge/internal/transcript"
	"reelforge/internal/workflow"
)

type fakeCollaborators struct {
	mu sync.Mutex

	workDir    string
	plan       plan.Plan
	brollErr   error
	publishErr error

	storedSegments []transcript.Segment
	brollTerms     []string
	renderedClips  []plan.BrollClip
	publishMeta    pipeline.PublishMetadata
}

func (f *fakeCollaborators) AutoEdit(ctx context.Context, videoPath string) (string, error) {
	jobID, _ := services.JobIDFromContext(ctx)
	out := filepath.Join(f.workDir, jobID, "edited.mp4")
	return out, os.WriteFile(out, []byte("edited"), 0o644)
}

func (f *fakeCollaborators) Transcribe(context.Context, string) (transcript.Transcript, error) {
	return testsupport.SampleTranscript(), nil
}

func (f *fakeCollaborators) StoreTranscript(_ context.Context, jobID string, segments []transcript.Segment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storedSegments = segments
	return "sheets:job/" + jobID, nil
}

func (f *fakeCollaborators) DetectHighlights(_ context.Context, transcriptPath string) ([]plan.Highlight, error) {
	if _, err := os.Stat(transcriptPath); err != nil {
		return nil, err
	}
	return testsupport.SampleHighlights(), nil
}

func (f *fakeCollaborators) GeneratePlan(_ context.Context, _ transcript.Transcript, _ []plan.Highlight, _ float64) (plan.Plan, error) {
	return f.plan, nil
}

func (f *fakeCollaborators) AcquireBroll(_ context.Context, terms []string, _ float64) ([]plan.BrollClip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brollTerms = terms
	if f.brollErr != nil {
		return nil, f.brollErr
	}
	clips := make([]plan.BrollClip, 0, len(terms))
	for _, term := range terms {
		clips = append(clips, plan.BrollClip{Query: term, Path: "/broll/" + term + ".mp4", Duration: 5})
	}
	return clips, nil
}

func (f *fakeCollaborators) Render(ctx context.Context, _ string, _ plan.Plan, clips []plan.BrollClip) (string, error) {
	f.mu.Lock()
	f.renderedClips = clips
	f.mu.Unlock()
	jobID, _ := services.JobIDFromContext(ctx)
	return filepath.Join(f.workDir, jobID, "final.mp4"), nil
}

func (f *fakeCollaborators) Publish(_ context.Context, _ string, meta pipeline.PublishMetadata) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishMeta = meta
	if f.publishErr != nil {
		return "", f.publishErr
	}
	return "https://videos.example.com/v/" + meta.JobID, nil
}

func (f *fakeCollaborators) ports() pipeline.Collaborators {
	return pipeline.Collaborators{
		AutoEditor:        f,
		Transcriber:       f,
		TranscriptStore:   f,
		HighlightDetector: f,
		PlanGenerator:     f,
		BrollSource:       f,
		Renderer:          f,
		Publisher:         f,
	}
}

type fixture struct {
	store   *queue.MemoryStore
	fake    *fakeCollaborators
	pipe    *pipeline.Pipeline
	orch    *workflow.Orchestrator
	sleeper *testsupport.RecordingSleeper
	job     *queue.Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMemoryStore())
	fake := &fakeCollaborators{workDir: cfg.Paths.WorkDir, plan: testsupport.SamplePlan()}
	pipe := pipeline.New(cfg.Paths.WorkDir, fake.ports(), nil)
	store := queue.NewMemoryStore()
	sleeper := testsupport.NewRecordingSleeper(nil)
	orch, err := workflow.NewOrchestrator(cfg, store, pipe.Handlers(), nil, workflow.WithSleeper(sleeper))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	source := testsupport.WriteUpload(t, cfg, "raw.mp4", 512)
	job, err := queue.CreateJob(context.Background(), store, queue.NewJobRequest{
		OwnerID:    "creator-1",
		SourcePath: source,
		Metadata:   testsupport.UploadMetadata(t, source),
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return &fixture{store: store, fake: fake, pipe: pipe, orch: orch, sleeper: sleeper, job: job}
}

func TestPipelinePublishesVideo(t *testing.T) {
	f := newFixture(t)

	job, err := f.orch.Run(context.Background(), f.job.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s (%+v)", job.Status, job.Error)
	}
	wantURL := "https://videos.example.com/v/" + job.ID
	if job.PublishedURL != wantURL {
		t.Fatalf("expected %s, got %s", wantURL, job.PublishedURL)
	}

	for _, name := range []string{pipeline.TranscriptFile, pipeline.SubtitleFile, pipeline.HighlightsFile, pipeline.PlanFile, pipeline.BrollFile} {
		if _, err := os.Stat(filepath.Join(f.pipe.WorkDir(job.ID), name)); err != nil {
			t.Fatalf("expected artifact %s: %v", name, err)
		}
	}
	if rec := job.Record(stage.GeneratingPlan); rec == nil || rec.OutputPath != filepath.Join(f.pipe.WorkDir(job.ID), pipeline.PlanFile) {
		t.Fatalf("unexpected plan record %+v", rec)
	}
	if rec := job.Record(stage.StoringTranscript); rec == nil || rec.OutputPath != "sheets:job/"+job.ID {
		t.Fatalf("unexpected transcript store record %+v", rec)
	}

	if len(f.fake.storedSegments) != 2 {
		t.Fatalf("expected 2 stored segments, got %d", len(f.fake.storedSegments))
	}
	if len(f.fake.brollTerms) != 2 || len(f.fake.renderedClips) != 2 {
		t.Fatalf("expected b-roll for 2 terms, got terms=%v clips=%d", f.fake.brollTerms, len(f.fake.renderedClips))
	}
	meta := f.fake.publishMeta
	if meta.Title != "Standing desk build" || meta.DurationSeconds != 45 || meta.SourceName != "raw.mp4" {
		t.Fatalf("unexpected publish metadata %+v", meta)
	}
}

func TestPipelineRendersWithoutBrollWhenFetchFails(t *testing.T) {
	f := newFixture(t)
	f.fake.brollErr = services.Wrap(services.KindExternalService, stage.AcquiringBroll, "search", "stock library unavailable", nil)

	job, err := f.orch.Run(context.Background(), f.job.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	rec := job.Record(stage.AcquiringBroll)
	if rec == nil || !rec.Skipped || rec.Attempts != 3 {
		t.Fatalf("expected skipped b-roll after 3 attempts, got %+v", rec)
	}
	if len(f.fake.renderedClips) != 0 {
		t.Fatalf("expected render without clips, got %d", len(f.fake.renderedClips))
	}
	if len(f.sleeper.Delays()) != 2 {
		t.Fatalf("expected 2 retry sleeps, got %v", f.sleeper.Delays())
	}
}

func TestPipelineRejectsInvalidPlan(t *testing.T) {
	f := newFixture(t)
	f.fake.plan.Highlights[0].Confidence = 1.5

	job, err := f.orch.Run(context.Background(), f.job.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != queue.StatusFailed || job.Error == nil {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
	if job.Error.Stage != stage.GeneratingPlan || job.Error.Kind != string(services.KindProcessing) {
		t.Fatalf("unexpected error %+v", job.Error)
	}
	if _, err := os.Stat(filepath.Join(f.pipe.WorkDir(job.ID), pipeline.PlanFile)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid plan should not be saved, stat err=%v", err)
	}
}

func TestPipelineChecksumMismatch(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(f.job.SourcePath, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	job, err := f.orch.Run(context.Background(), f.job.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != queue.StatusFailed || job.Error.Stage != stage.Uploaded || job.Error.Kind != string(services.KindValidation) {
		t.Fatalf("expected validation failure at upload, got %s %+v", job.Status, job.Error)
	}
}

func TestPublishRequiresRenderedVideo(t *testing.T) {
	f := newFixture(t)
	handler := f.pipe.Handlers()[stage.Uploading]

	prior := stageexec.Outputs{stage.Rendering: "/work/final.mp4"}
	if result := handler.Run(context.Background(), f.job, prior); !result.IsOk() {
		t.Fatalf("expected ok, got %v", result.Failure())
	}

	missing := handler.Run(context.Background(), f.job, stageexec.Outputs{})
	if missing.IsOk() || missing.Failure().Kind != services.KindProcessing {
		t.Fatalf("expected processing failure without a rendered file, got %+v", missing)
	}
}

func TestCompletedReturnsPublishedURL(t *testing.T) {
	f := newFixture(t)
	handler := f.pipe.Handlers()[stage.Completed]
	result := handler.Run(context.Background(), f.job, stageexec.Outputs{stage.Uploading: "https://v.example/1"})
	if !result.IsOk() || result.Output() != "https://v.example/1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if handler.Run(context.Background(), f.job, stageexec.Outputs{}).IsOk() {
		t.Fatal("expected failure without an upload output")
	}
}

func TestBrollWithoutQueriesWritesEmptyArtifact(t *testing.T) {
	f := newFixture(t)
	p := testsupport.SamplePlan()
	for i := range p.Segments {
		p.Segments[i].BrollQuery = ""
	}
	planPath := filepath.Join(f.pipe.WorkDir(f.job.ID), pipeline.PlanFile)
	if err := fileutil.WriteJSONAtomic(planPath, p); err != nil {
		t.Fatal(err)
	}
	result := f.pipe.Handlers()[stage.AcquiringBroll].Run(context.Background(), f.job, stageexec.Outputs{stage.GeneratingPlan: planPath})
	if !result.IsOk() {
		t.Fatalf("expected ok, got %v", result.Failure())
	}
	var clips []plan.BrollClip
	if err := fileutil.ReadJSON(result.Output(), &clips); err != nil {
		t.Fatal(err)
	}
	if clips == nil || len(clips) != 0 {
		t.Fatalf("expected empty clip list, got %v", clips)
	}
	if f.fake.brollTerms != nil {
		t.Fatal("b-roll source should not be called without queries")
	}
}

func TestPipelineFailsWhenPublishingKeepsFailing(t *testing.T) {
	f := newFixture(t)
	f.fake.publishErr = errors.New("upload endpoint returned 503")

	job, err := f.orch.Run(context.Background(), f.job.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != queue.StatusFailed || job.Error.Stage != stage.Uploading {
		t.Fatalf("expected failure at uploading, got %s %+v", job.Status, job.Error)
	}
	if job.Error.Kind != string(services.KindExternalService) {
		t.Fatalf("expected external service kind, got %s", job.Error.Kind)
	}
	if job.PublishedURL != "" {
		t.Fatalf("failed job should have no URL, got %s", job.PublishedURL)
	}
}

type readyChecker struct{ *fakeCollaborators }

func (readyChecker) Check(_ context.Context, id stage.ID) stage.Health {
	return stage.Unhealthy(id, "maintenance window")
}

func TestHandlersReportCollaboratorHealth(t *testing.T) {
	f := newFixture(t)
	ports := f.fake.ports()
	ports.BrollSource = nil
	ports.Renderer = readyChecker{f.fake}

	cfg := testsupport.NewConfig(t, testsupport.WithMemoryStore())
	orch, err := workflow.NewOrchestrator(cfg, f.store, pipeline.New(cfg.Paths.WorkDir, ports, nil).Handlers(), nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	health := orch.Health(context.Background())
	if len(health) != 8 {
		t.Fatalf("expected health for 8 collaborator stages, got %d", len(health))
	}
	if h := health[stage.AcquiringBroll]; h.Ready || h.Detail != "not configured" {
		t.Fatalf("expected b-roll not configured, got %+v", h)
	}
	if h := health[stage.Rendering]; h.Ready || h.Detail != "maintenance window" {
		t.Fatalf("expected renderer check result, got %+v", h)
	}
	if h := health[stage.Transcribing]; !h.Ready {
		t.Fatalf("expected transcriber ready, got %+v", h)
	}
}
