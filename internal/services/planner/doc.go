// Package planner backs the highlight-detection and plan-generation ports
// with a chat-completion model.
//
// Model output is never trusted as-is. Highlights are clamped to 1.5-5s,
// capped at planner.max_highlights (most confident first) and staggered by
// 0.3s. Plans are clipped to the source duration, transitions are mapped
// onto the renderer's vocabulary, and overlays that fall past the output
// timeline are dropped. Rejected requests fail the stage; transient
// endpoint errors and malformed answers are retried by the orchestrator.
package planner
