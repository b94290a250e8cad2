// Package preflight provides readiness checks for the directories,
// endpoints and external programs reelforge depends on.
//
// The daemon logs the results at startup and `reelforge doctor` renders
// them as a table. Failed checks are reported, never fatal: a stage whose
// collaborator is missing fails with a validation error when it runs.
package preflight
