package planner

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"reelforge/internal/plan"
)

var (
	transitionTypes      = []string{"cut", "crossfade", "slide", "zoom", "scale", "rotate", "blur"}
	transitionDirections = []string{"left", "right", "up", "down"}
	highlightPositions   = []string{"top", "center", "bottom"}
	highlightAnimations  = []string{"fade", "zoom", "slide", "bounce", "float", "flip", "typewriter", "pulse", "spin", "pop"}

	transitionAliases = map[string]string{
		"fade":       "crossfade",
		"dissolve":   "crossfade",
		"zoom-in":    "zoom",
		"zoom-out":   "zoom",
		"push":       "zoom",
		"punch":      "zoom",
		"punch-in":   "zoom",
		"scale-up":   "scale",
		"grow":       "scale",
		"shrink":     "scale",
		"spin":       "rotate",
		"twist":      "rotate",
		"focus":      "blur",
		"defocus":    "blur",
		"soft-focus": "blur",
	}
)

const (
	defaultHighlightDuration  = 2.6
	minHighlightDuration      = 1.5
	maxHighlightDuration      = 5.0
	minTrailingDuration       = 0.5
	defaultTransitionDuration = 0.6
	overlaySpacing            = 0.3
)

func normalizeTransition(t *plan.Transition) *plan.Transition {
	if t == nil {
		return nil
	}
	kind := strings.ToLower(strings.TrimSpace(t.Type))
	direction := strings.ToLower(strings.TrimSpace(t.Direction))
	if strings.HasPrefix(kind, "slide-") {
		direction = strings.TrimPrefix(kind, "slide-")
		kind = "slide"
	}
	if alias, ok := transitionAliases[kind]; ok {
		kind = alias
	}
	if !slices.Contains(transitionTypes, kind) || kind == "cut" {
		return &plan.Transition{Type: "cut"}
	}
	duration := t.Duration
	if duration <= 0 {
		duration = defaultTransitionDuration
	}
	out := &plan.Transition{Type: kind, Duration: round3(clamp(duration, 0.1, 3))}
	if kind == "slide" && slices.Contains(transitionDirections, direction) {
		out.Direction = direction
	}
	return out
}

// normalizeHighlights cleans model output: empty captions are dropped,
// timing and presentation are clamped, the limit keeps the most confident
// moments, and the survivors are ordered and staggered by start time.
func normalizeHighlights(raw []plan.Highlight, limit int, presentation bool) []plan.Highlight {
	out := make([]plan.Highlight, 0, len(raw))
	for _, h := range raw {
		h.Text = strings.Join(strings.Fields(h.Text), " ")
		if h.Text == "" {
			continue
		}
		h.Start = round3(math.Max(0, h.Start))
		if h.Duration <= 0 {
			h.Duration = defaultHighlightDuration
		}
		h.Duration = round3(clamp(h.Duration, minHighlightDuration, maxHighlightDuration))
		h.Confidence = clamp(h.Confidence, 0, 1)
		if presentation {
			h.Position = pick(h.Position, highlightPositions, "center")
			h.Animation = pick(h.Animation, highlightAnimations, "fade")
			h.SFX = strings.TrimSpace(h.SFX)
			h.Volume = clamp(h.Volume, 0, 1)
		} else {
			h.Position, h.Animation, h.SFX, h.Volume = "", "", "", 0
		}
		out = append(out, h)
	}

	if limit > 0 && len(out) > limit {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
		out = out[:limit]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	seen := make(map[string]struct{}, len(out))
	for i := range out {
		if i > 0 {
			if earliest := round3(out[i-1].Start + overlaySpacing); out[i].Start < earliest {
				out[i].Start = earliest
			}
		}
		id := strings.TrimSpace(out[i].ID)
		if _, dup := seen[id]; id == "" || dup {
			id = fmt.Sprintf("highlight-%d", i+1)
		}
		seen[id] = struct{}{}
		out[i].ID = id
	}
	return out
}

// normalizePlan fits model output to the source: segments are clipped to
// the source duration and highlights to the output timeline.
func normalizePlan(p plan.Plan, sourceDuration float64, highlightLimit int) plan.Plan {
	p.Title = strings.TrimSpace(p.Title)
	p.SourceDuration = sourceDuration

	segments := make([]plan.Segment, 0, len(p.Segments))
	seen := make(map[string]struct{}, len(p.Segments))
	for _, seg := range p.Segments {
		seg.SourceStart = round3(math.Max(0, seg.SourceStart))
		if sourceDuration > 0 {
			if seg.SourceStart >= sourceDuration {
				continue
			}
			seg.Duration = math.Min(seg.Duration, sourceDuration-seg.SourceStart)
		}
		seg.Duration = round3(seg.Duration)
		if seg.Duration <= 0 {
			continue
		}
		id := strings.TrimSpace(seg.ID)
		if _, dup := seen[id]; id == "" || dup {
			id = fmt.Sprintf("segment-%d", len(segments)+1)
		}
		seen[id] = struct{}{}
		seg.ID = id
		seg.Label = strings.TrimSpace(seg.Label)
		seg.Title = strings.TrimSpace(seg.Title)
		seg.BrollQuery = strings.TrimSpace(seg.BrollQuery)
		seg.TransitionIn = normalizeTransition(seg.TransitionIn)
		seg.TransitionOut = normalizeTransition(seg.TransitionOut)
		segments = append(segments, seg)
	}
	p.Segments = segments

	outputLen := p.Duration()
	highlights := normalizeHighlights(p.Highlights, highlightLimit, true)
	p.Highlights = highlights[:0]
	for _, h := range highlights {
		if h.Start >= outputLen {
			continue
		}
		if h.End() > outputLen {
			h.Duration = outputLen - h.Start
		}
		if h.Duration < minTrailingDuration {
			continue
		}
		p.Highlights = append(p.Highlights, h)
	}
	return p
}

func pick(value string, allowed []string, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if slices.Contains(allowed, value) {
		return value
	}
	return fallback
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
