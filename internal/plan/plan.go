package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Plan is the editing plan that drives rendering. Segments are cut from
// the edited source in order; highlights are text overlays placed on the
// output timeline.
type Plan struct {
	Title          string      `json:"title,omitempty"`
	SourceDuration float64     `json:"sourceDuration"`
	Segments       []Segment   `json:"segments"`
	Highlights     []Highlight `json:"highlights"`
}

// Segment is one cut taken from the source video.
type Segment struct {
	ID            string      `json:"id"`
	SourceStart   float64     `json:"sourceStart"`
	Duration      float64     `json:"duration"`
	Label         string      `json:"label,omitempty"`
	Title         string      `json:"title,omitempty"`
	BrollQuery    string      `json:"brollQuery,omitempty"`
	TransitionIn  *Transition `json:"transitionIn,omitempty"`
	TransitionOut *Transition `json:"transitionOut,omitempty"`
}

// Transition describes how a segment enters or leaves.
type Transition struct {
	Type      string  `json:"type"`
	Duration  float64 `json:"duration"`
	Direction string  `json:"direction,omitempty"`
}

// Highlight is a detected moment worth emphasizing. Detection fills Text,
// Start, Duration and Confidence; plan generation adds presentation.
type Highlight struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	Duration   float64 `json:"duration"`
	Confidence float64 `json:"confidence"`
	Position   string  `json:"position,omitempty"`
	Animation  string  `json:"animation,omitempty"`
	SFX        string  `json:"sfx,omitempty"`
	Volume     float64 `json:"volume,omitempty"`
}

// End returns the highlight end time in seconds.
func (h Highlight) End() float64 { return h.Start + h.Duration }

// BrollClip is a supplementary clip fetched for a search term.
type BrollClip struct {
	Query     string  `json:"query"`
	Path      string  `json:"path"`
	Duration  float64 `json:"duration"`
	SourceURL string  `json:"sourceUrl,omitempty"`
}

// Duration returns the output length: the sum of segment durations.
func (p Plan) Duration() float64 {
	var total float64
	for _, seg := range p.Segments {
		total += seg.Duration
	}
	return total
}

// BrollQueries returns the distinct b-roll search terms in segment order
// and the total duration of the segments that asked for b-roll.
func (p Plan) BrollQueries() ([]string, float64) {
	seen := make(map[string]struct{})
	var (
		terms  []string
		target float64
	)
	for _, seg := range p.Segments {
		query := strings.TrimSpace(seg.BrollQuery)
		if query == "" {
			continue
		}
		target += seg.Duration
		key := strings.ToLower(query)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, query)
	}
	return terms, target
}

// SortedHighlights returns highlights ordered by start time.
func (p Plan) SortedHighlights() []Highlight {
	out := make([]Highlight, len(p.Highlights))
	copy(out, p.Highlights)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Decode parses a plan document.
func Decode(data []byte) (Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	return p, nil
}
