package plan_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/plan"
	"reelforge/internal/services"
)

func samplePlan() plan.Plan {
	return plan.Plan{
		Title:          "Desk build",
		SourceDuration: 120,
		Segments: []plan.Segment{
			{ID: "intro", SourceStart: 0, Duration: 10, BrollQuery: "workshop"},
			{ID: "build", SourceStart: 30, Duration: 40, BrollQuery: "power tools",
				TransitionIn: &plan.Transition{Type: "fade", Duration: 0.5}},
			{ID: "outro", SourceStart: 100, Duration: 15, BrollQuery: "Workshop"},
		},
		Highlights: []plan.Highlight{
			{ID: "h1", Text: "Measure twice", Start: 5, Duration: 2, Confidence: 0.9, Position: "bottom"},
			{ID: "h2", Text: "Cut once", Start: 20, Duration: 2, Confidence: 0.7},
		},
	}
}

func TestValidatePlanAccepted(t *testing.T) {
	report := plan.Validate(samplePlan())
	assert.Empty(t, report.Issues)
	assert.NoError(t, report.Err())
}

func TestValidateSchemaErrors(t *testing.T) {
	p := samplePlan()
	p.Segments[1].ID = ""
	p.Highlights[0].Position = "sideways"

	report := plan.Validate(p)
	require.NotEmpty(t, report.Errors())
	for _, issue := range report.Errors() {
		assert.Equal(t, "schema.validation", issue.Code)
		assert.NotEmpty(t, issue.Context["field"])
	}

	err := report.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrProcessing))
	kind, ok := services.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, services.KindProcessing, kind)
}

func TestValidateRejectsEmptySegments(t *testing.T) {
	p := samplePlan()
	p.Segments = nil
	assert.NotEmpty(t, plan.Validate(p).Errors())
}

func TestValidateTimelineBounds(t *testing.T) {
	p := samplePlan()
	p.Segments[2].Duration = 30 // 100 + 30 > 120
	p.Highlights[1].Start = 80  // past the 80s output

	report := plan.Validate(p)
	errs := report.Errors()
	require.Len(t, errs, 2)
	for _, issue := range errs {
		assert.Equal(t, "rule.timeline.bounds", issue.Code)
	}
	assert.Error(t, report.Err())
}

func TestValidateConfidenceRange(t *testing.T) {
	p := samplePlan()
	p.Highlights[0].Confidence = 1.2

	errs := plan.Validate(p).Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "rule.highlight.confidence", errs[0].Code)
}

func TestOverlaySpacingIsWarning(t *testing.T) {
	p := samplePlan()
	p.Highlights = append(p.Highlights, plan.Highlight{ID: "h3", Text: "Too soon", Start: 5.1, Duration: 1, Confidence: 0.5})

	report := plan.Validate(p)
	assert.Empty(t, report.Errors())
	warnings := report.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "rule.overlay.spacing", warnings[0].Code)
	assert.Equal(t, 5.1, warnings[0].Context["timestamp"])
	assert.NoError(t, report.Err())
}

func TestBrollQueries(t *testing.T) {
	terms, target := samplePlan().BrollQueries()
	assert.Equal(t, []string{"workshop", "power tools"}, terms)
	assert.InDelta(t, 65.0, target, 1e-9)

	none, zero := plan.Plan{Segments: []plan.Segment{{ID: "a", Duration: 3}}}.BrollQueries()
	assert.Empty(t, none)
	assert.Zero(t, zero)
}

func TestDecode(t *testing.T) {
	p, err := plan.Decode([]byte(`{"sourceDuration":12,"segments":[{"id":"a","sourceStart":0,"duration":12}],"highlights":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 12.0, p.Duration())

	_, err = plan.Decode([]byte(`{`))
	assert.Error(t, err)
}
