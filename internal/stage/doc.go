// Package stage holds the fixed, ordered registry of pipeline stages.
//
// Stage positions drive progress percentages, so adding or removing a stage
// is a registry change rather than a data migration. Each entry carries a
// Required flag (optional stages are skipped on failure) and a Network flag
// (collaborator timeouts on network stages are retryable).
package stage
