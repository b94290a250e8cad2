package plan

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"reelforge/internal/services"
	"reelforge/internal/stage"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// Severity grades a validation issue. Only errors reject a plan.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Minimum gap between consecutive text overlays, in seconds.
const overlaySpacing = 0.3

// Issue is one finding from schema or rule validation.
type Issue struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Context  map[string]any `json:"context,omitempty"`
}

// Report collects validation findings.
type Report struct {
	Issues []Issue `json:"issues"`
}

// Errors returns the error-severity issues.
func (r Report) Errors() []Issue { return r.filter(SeverityError) }

// Warnings returns the warning-severity issues.
func (r Report) Warnings() []Issue { return r.filter(SeverityWarning) }

func (r Report) filter(sev Severity) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == sev {
			out = append(out, issue)
		}
	}
	return out
}

// Err returns a processing failure summarizing error-severity issues, or
// nil when the plan is usable.
func (r Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(errs))
	for _, issue := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Code, issue.Message))
	}
	return services.Wrap(
		services.KindProcessing,
		stage.GeneratingPlan,
		"validate plan",
		fmt.Sprintf("%d invalid plan element(s): %s", len(errs), strings.Join(parts, "; ")),
		nil,
	)
}

// Validate checks a plan against the schema and the timing rules.
func Validate(p Plan) Report {
	if p.Highlights == nil {
		p.Highlights = []Highlight{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return Report{Issues: []Issue{{
			Code:     "schema.encode",
			Message:  err.Error(),
			Severity: SeverityError,
		}}}
	}
	report := ValidateDocument(data)
	if len(report.Errors()) > 0 {
		return report
	}
	report.Issues = append(report.Issues, checkRules(p)...)
	return report
}

// ValidateDocument checks raw plan JSON against the schema only.
func ValidateDocument(data []byte) Report {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Report{Issues: []Issue{{
			Code:     "schema.load",
			Message:  err.Error(),
			Severity: SeverityError,
		}}}
	}
	var report Report
	for _, desc := range result.Errors() {
		report.Issues = append(report.Issues, Issue{
			Code:     "schema.validation",
			Message:  desc.Description(),
			Severity: SeverityError,
			Context:  map[string]any{"field": desc.Field()},
		})
	}
	return report
}

func checkRules(p Plan) []Issue {
	var issues []Issue

	for _, seg := range p.Segments {
		if end := seg.SourceStart + seg.Duration; end > p.SourceDuration+1e-6 {
			issues = append(issues, Issue{
				Code:     "rule.timeline.bounds",
				Message:  fmt.Sprintf("segment %q ends at %.3fs, past the %.3fs source", seg.ID, end, p.SourceDuration),
				Severity: SeverityError,
				Context:  map[string]any{"segment": seg.ID, "end": end},
			})
		}
	}

	outputLen := p.Duration()
	last := -1e9
	for _, h := range p.SortedHighlights() {
		if h.Confidence < 0 || h.Confidence > 1 {
			issues = append(issues, Issue{
				Code:     "rule.highlight.confidence",
				Message:  fmt.Sprintf("highlight %q confidence %.3f outside [0,1]", h.ID, h.Confidence),
				Severity: SeverityError,
				Context:  map[string]any{"highlight": h.ID},
			})
		}
		if h.End() > outputLen+1e-6 {
			issues = append(issues, Issue{
				Code:     "rule.timeline.bounds",
				Message:  fmt.Sprintf("highlight %q ends at %.3fs, past the %.3fs output", h.ID, h.End(), outputLen),
				Severity: SeverityError,
				Context:  map[string]any{"highlight": h.ID, "end": h.End()},
			})
		}
		if h.Start-last < overlaySpacing {
			issues = append(issues, Issue{
				Code:     "rule.overlay.spacing",
				Message:  "Overlays should be staggered by at least 0.3s",
				Severity: SeverityWarning,
				Context:  map[string]any{"timestamp": h.Start},
			})
		}
		last = h.Start
	}
	return issues
}
