// Package stageexec runs a single pipeline stage: it marks the stage record,
// invokes the handler under a timeout, classifies failures, sleeps between
// retries, and commits the outcome through lease-checked store updates.
//
// Handlers return a Result, which is either Ok(output) or Err(failure).
// Optional stages whose failures exhaust the policy are recorded as skipped
// and the caller moves on.
package stageexec
