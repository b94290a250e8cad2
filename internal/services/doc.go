// Package services defines the failure taxonomy and context helpers shared by
// stage handlers and collaborator adapters.
//
// Key responsibilities:
//   - Failure kinds (validation, processing, external service, storage,
//     cancelled) plus the Wrap helper that tags collaborator errors so the
//     classifier can decide between retry and fail.
//   - Context helpers that stamp job IDs, stage names, attempts, and
//     correlation identifiers for logging.
//
// Collaborator adapters live in subpackages (command, sheets).
package services
