package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/pipeline"
	"reelforge/internal/plan"
	"reelforge/internal/services"
	"reelforge/internal/stage"
	"reelforge/internal/transcript"
)

// Artifact names written by file-producing commands.
const (
	EditedFile = "edited.mp4"
	FinalFile  = "final.mp4"
)

// Client implements the pipeline collaborator ports on top of configured
// commands. The job id is read from the call context.
type Client struct {
	workRoot   string
	autoEdit   *Runner
	transcribe *Runner
	highlights *Runner
	planGen    *Runner
	broll      *Runner
	render     *Runner
	publish    *Runner
}

// NewClient builds runners for every command in cfg.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	cmds := cfg.Commands
	return &Client{
		workRoot:   cfg.Paths.WorkDir,
		autoEdit:   NewRunner(stage.AutoEditing, cmds.AutoEdit, services.KindProcessing, opts...),
		transcribe: NewRunner(stage.Transcribing, cmds.Transcribe, services.KindExternalService, opts...),
		highlights: NewRunner(stage.DetectingHighlights, cmds.DetectHighlights, services.KindExternalService, opts...),
		planGen:    NewRunner(stage.GeneratingPlan, cmds.GeneratePlan, services.KindExternalService, opts...),
		broll:      NewRunner(stage.AcquiringBroll, cmds.AcquireBroll, services.KindExternalService, opts...),
		render:     NewRunner(stage.Rendering, cmds.Render, services.KindProcessing, opts...),
		publish:    NewRunner(stage.Uploading, cmds.Publish, services.KindExternalService, opts...),
	}
}

// Programs returns the configured binary per stage.
func (c *Client) Programs() map[stage.ID]string {
	out := make(map[stage.ID]string)
	for _, r := range []*Runner{c.autoEdit, c.transcribe, c.highlights, c.planGen, c.broll, c.render, c.publish} {
		if r.Configured() {
			out[r.stage] = r.Program()
		}
	}
	return out
}

// Collaborators exposes the client through the pipeline ports. B-roll is
// optional, so an unconfigured b-roll command leaves that port empty.
func (c *Client) Collaborators(store pipeline.TranscriptStore) pipeline.Collaborators {
	collab := pipeline.Collaborators{
		AutoEditor:        c,
		Transcriber:       c,
		TranscriptStore:   store,
		HighlightDetector: c,
		PlanGenerator:     c,
		Renderer:          c,
		Publisher:         c,
	}
	if c.broll.Configured() {
		collab.BrollSource = c
	}
	return collab
}

func (c *Client) vars(ctx context.Context, input, outputName string) Vars {
	jobID, _ := services.JobIDFromContext(ctx)
	workDir := c.workRoot
	if jobID != "" {
		workDir = filepath.Join(c.workRoot, jobID)
	}
	v := Vars{Input: input, Job: jobID, WorkDir: workDir}
	if outputName != "" {
		v.Output = filepath.Join(workDir, outputName)
	}
	return v
}

// AutoEdit runs the auto editor and returns the edited video path.
func (c *Client) AutoEdit(ctx context.Context, videoPath string) (string, error) {
	vars := c.vars(ctx, videoPath, EditedFile)
	if err := c.autoEdit.Run(ctx, vars, nil, nil); err != nil {
		return "", err
	}
	return requireFile(stage.AutoEditing, vars.Output)
}

// Transcribe runs the transcriber and decodes its JSON transcript.
func (c *Client) Transcribe(ctx context.Context, videoPath string) (transcript.Transcript, error) {
	var tr transcript.Transcript
	if err := c.transcribe.Run(ctx, c.vars(ctx, videoPath, ""), nil, &tr); err != nil {
		return transcript.Transcript{}, err
	}
	return tr, nil
}

// DetectHighlights runs the detector against a transcript artifact.
func (c *Client) DetectHighlights(ctx context.Context, transcriptPath string) ([]plan.Highlight, error) {
	var highlights []plan.Highlight
	if err := c.highlights.Run(ctx, c.vars(ctx, transcriptPath, ""), nil, &highlights); err != nil {
		return nil, err
	}
	return highlights, nil
}

type planRequest struct {
	Transcript      transcript.Transcript `json:"transcript"`
	Highlights      []plan.Highlight      `json:"highlights"`
	DurationSeconds float64               `json:"durationSeconds"`
}

// GeneratePlan sends the transcript and highlights on stdin and decodes
// the plan from stdout.
func (c *Client) GeneratePlan(ctx context.Context, tr transcript.Transcript, highlights []plan.Highlight, durationSeconds float64) (plan.Plan, error) {
	req := planRequest{Transcript: tr, Highlights: highlights, DurationSeconds: durationSeconds}
	var p plan.Plan
	if err := c.planGen.Run(ctx, c.vars(ctx, "", ""), req, &p); err != nil {
		return plan.Plan{}, err
	}
	return p, nil
}

type brollRequest struct {
	SearchTerms    []string `json:"searchTerms"`
	TargetDuration float64  `json:"targetDuration"`
}

// AcquireBroll asks the fetcher for clips matching the search terms.
func (c *Client) AcquireBroll(ctx context.Context, searchTerms []string, targetDuration float64) ([]plan.BrollClip, error) {
	var clips []plan.BrollClip
	req := brollRequest{SearchTerms: searchTerms, TargetDuration: targetDuration}
	if err := c.broll.Run(ctx, c.vars(ctx, "", ""), req, &clips); err != nil {
		return nil, err
	}
	return clips, nil
}

type renderRequest struct {
	Plan  plan.Plan        `json:"plan"`
	Broll []plan.BrollClip `json:"broll"`
}

// Render produces the final video and returns its path.
func (c *Client) Render(ctx context.Context, videoPath string, p plan.Plan, clips []plan.BrollClip) (string, error) {
	vars := c.vars(ctx, videoPath, FinalFile)
	if err := c.render.Run(ctx, vars, renderRequest{Plan: p, Broll: clips}, nil); err != nil {
		return "", err
	}
	return requireFile(stage.Rendering, vars.Output)
}

type publishResponse struct {
	URL string `json:"url"`
}

// Publish uploads the final video and returns the public URL.
func (c *Client) Publish(ctx context.Context, finalPath string, meta pipeline.PublishMetadata) (string, error) {
	var resp publishResponse
	if err := c.publish.Run(ctx, c.vars(ctx, finalPath, ""), meta, &resp); err != nil {
		return "", err
	}
	url := strings.TrimSpace(resp.URL)
	if url == "" {
		return "", services.Wrap(services.KindExternalService, stage.Uploading, "publish", "publisher returned no URL", nil)
	}
	return url, nil
}

func requireFile(id stage.ID, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.KindProcessing, id, "verify output", fmt.Sprintf("command produced no file at %s", path), err)
		}
		return "", services.Wrap(services.KindStorage, id, "verify output", "", err)
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.KindProcessing, id, "verify output", fmt.Sprintf("%s is empty", path), nil)
	}
	return path, nil
}

// Check reports whether the command for a stage is configured and its
// program can be found.
func (c *Client) Check(_ context.Context, id stage.ID) stage.Health {
	var runner *Runner
	for _, r := range []*Runner{c.autoEdit, c.transcribe, c.highlights, c.planGen, c.broll, c.render, c.publish} {
		if r.stage == id {
			runner = r
			break
		}
	}
	if !runner.Configured() {
		return stage.Unhealthy(id, "no command configured")
	}
	if _, err := exec.LookPath(runner.Program()); err != nil {
		return stage.Unhealthy(id, fmt.Sprintf("binary %q not found", runner.Program()))
	}
	return stage.Health{Stage: id, Ready: true, Detail: runner.Program()}
}
