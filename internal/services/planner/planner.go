package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/plan"
	"reelforge/internal/services"
	"reelforge/internal/services/llm"
	"reelforge/internal/stage"
	"reelforge/internal/transcript"
)

// Completer sends a system and user prompt and returns the JSON answer.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Planner detects highlights and drafts editing plans with a chat model.
type Planner struct {
	completer     Completer
	model         string
	maxHighlights int
}

// New builds a planner from the [planner] config section. The result is
// unconfigured when no key or model is set.
func New(cfg *config.Config, opts ...llm.Option) *Planner {
	if !cfg.Planner.Enabled() {
		return &Planner{maxHighlights: cfg.Planner.MaxHighlights}
	}
	client := llm.NewClient(llm.Config{
		APIKey:         cfg.Planner.APIKey,
		BaseURL:        cfg.Planner.BaseURL,
		Model:          cfg.Planner.Model,
		TimeoutSeconds: cfg.Planner.TimeoutSeconds,
	}, opts...)
	return NewWithCompleter(client, cfg.Planner.Model, cfg.Planner.MaxHighlights)
}

// NewWithCompleter wires an explicit completer.
func NewWithCompleter(completer Completer, model string, maxHighlights int) *Planner {
	return &Planner{completer: completer, model: model, maxHighlights: maxHighlights}
}

// Configured reports whether the planner can reach a model.
func (p *Planner) Configured() bool { return p != nil && p.completer != nil }

type highlightAnswer struct {
	Highlights []plan.Highlight `json:"highlights"`
}

// DetectHighlights reads the transcript artifact and asks the model for the
// moments worth an overlay.
func (p *Planner) DetectHighlights(ctx context.Context, transcriptPath string) ([]plan.Highlight, error) {
	const op = "detect highlights"
	if !p.Configured() {
		return nil, notConfigured(stage.DetectingHighlights, op)
	}
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return nil, services.Wrap(services.KindStorage, stage.DetectingHighlights, "read transcript", "", err)
	}
	var tr transcript.Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, services.Wrap(services.KindValidation, stage.DetectingHighlights, "decode transcript", "", err)
	}
	if err := tr.Validate(); err != nil {
		return nil, services.Wrap(services.KindValidation, stage.DetectingHighlights, "check transcript", "", err)
	}

	system := fmt.Sprintf(highlightPrompt, p.maxHighlights)
	content, err := p.completer.CompleteJSON(ctx, system, "Transcript:\n"+timeline(tr))
	if err != nil {
		return nil, p.failure(ctx, stage.DetectingHighlights, op, err)
	}
	var answer highlightAnswer
	if err := llm.DecodeJSON(content, &answer); err != nil {
		return nil, services.Wrap(services.KindExternalService, stage.DetectingHighlights, op, "model returned malformed highlights", err)
	}
	return normalizeHighlights(answer.Highlights, p.maxHighlights, false), nil
}

type planInput struct {
	DurationSeconds float64          `json:"durationSeconds"`
	Highlights      []plan.Highlight `json:"detectedHighlights"`
}

// GeneratePlan asks the model for an editing plan and fits the answer to
// the source duration.
func (p *Planner) GeneratePlan(ctx context.Context, tr transcript.Transcript, highlights []plan.Highlight, durationSeconds float64) (plan.Plan, error) {
	const op = "generate plan"
	if !p.Configured() {
		return plan.Plan{}, notConfigured(stage.GeneratingPlan, op)
	}
	if highlights == nil {
		highlights = []plan.Highlight{}
	}
	source, err := json.Marshal(planInput{DurationSeconds: durationSeconds, Highlights: highlights})
	if err != nil {
		return plan.Plan{}, services.Wrap(services.KindProcessing, stage.GeneratingPlan, "encode prompt", "", err)
	}
	system := fmt.Sprintf(planPrompt,
		strings.Join(transitionTypes, ", "),
		strings.Join(transitionDirections, ", "),
		strings.Join(highlightPositions, ", "),
		strings.Join(highlightAnimations, ", "),
		p.maxHighlights,
	)
	user := "Source video:\n" + string(source) + "\n\nTranscript segments (ordered):\n" + timeline(tr)

	content, err := p.completer.CompleteJSON(ctx, system, user)
	if err != nil {
		return plan.Plan{}, p.failure(ctx, stage.GeneratingPlan, op, err)
	}
	var drafted plan.Plan
	if err := llm.DecodeJSON(content, &drafted); err != nil {
		return plan.Plan{}, services.Wrap(services.KindExternalService, stage.GeneratingPlan, op, "model returned a malformed plan", err)
	}
	normalized := normalizePlan(drafted, durationSeconds, p.maxHighlights)
	if len(normalized.Segments) == 0 {
		return plan.Plan{}, services.Wrap(services.KindExternalService, stage.GeneratingPlan, op, "model returned no usable segments", nil)
	}
	return normalized, nil
}

// Check reports the configured model without calling it.
func (p *Planner) Check(_ context.Context, id stage.ID) stage.Health {
	if !p.Configured() {
		return stage.Unhealthy(id, "planner api key or model not configured")
	}
	return stage.Health{Stage: id, Ready: true, Detail: "llm " + p.model}
}

// failure maps a completion error to a stage failure. Rejected requests
// (bad key, unknown model) are not worth retrying.
func (p *Planner) failure(ctx context.Context, id stage.ID, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) && !statusErr.Temporary() {
		return services.WithHint(
			services.Wrap(services.KindValidation, id, op, "model endpoint rejected the request", err),
			"check planner.api_key and planner.model",
		)
	}
	return services.Wrap(services.KindExternalService, id, op, "", err)
}

func notConfigured(id stage.ID, op string) error {
	return services.WithHint(
		services.Wrap(services.KindValidation, id, op, "planner not configured", nil),
		"set planner.api_key and planner.model or configure a command for this stage",
	)
}

// timeline renders transcript segments as numbered, timecoded lines.
func timeline(tr transcript.Transcript) string {
	var b strings.Builder
	for i, seg := range tr.Segments {
		text := strings.Join(strings.Fields(seg.Text), " ")
		if text == "" {
			continue
		}
		index := seg.Index
		if index <= 0 {
			index = i + 1
		}
		fmt.Fprintf(&b, "%d. [%s -> %s] %s\n", index,
			transcript.FormatTimecode(seg.Start), transcript.FormatTimecode(seg.End), text)
	}
	return b.String()
}
