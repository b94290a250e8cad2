// Package progress derives a job's completion percentage, current stage, and
// remaining-time estimate from its stage history.
//
// Calculate is pure. Service wraps it with a store lookup and a clock so the
// daemon API and CLI answer status queries without touching the
// orchestrator.
package progress
