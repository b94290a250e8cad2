package testsupport

import (
	"reelforge/internal/plan"
	"reelforge/internal/transcript"
)

// SampleTranscript returns a short two-segment transcript.
func SampleTranscript() transcript.Transcript {
	return transcript.Transcript{
		Language: "en",
		Segments: []transcript.Segment{
			{Index: 1, Start: 0, End: 4.5, Text: "Today we build a standing desk."},
			{Index: 2, Start: 4.5, End: 9, Text: "First, measure the legs."},
		},
	}
}

// SampleHighlights returns highlights that fit SamplePlan's output.
func SampleHighlights() []plan.Highlight {
	return []plan.Highlight{
		{ID: "h1", Text: "Standing desk", Start: 1, Duration: 2, Confidence: 0.92},
		{ID: "h2", Text: "Measure twice", Start: 20, Duration: 2, Confidence: 0.71},
	}
}

// SamplePlan returns a valid plan for a 120 second source that asks for
// b-roll on two segments.
func SamplePlan() plan.Plan {
	return plan.Plan{
		Title:          "Standing desk build",
		SourceDuration: 120,
		Segments: []plan.Segment{
			{ID: "intro", SourceStart: 0, Duration: 15, BrollQuery: "woodshop"},
			{ID: "legs", SourceStart: 40, Duration: 30, BrollQuery: "table saw"},
		},
		Highlights: SampleHighlights(),
	}
}
