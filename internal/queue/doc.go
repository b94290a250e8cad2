// Package queue persists pipeline jobs and exposes the transitions that drive
// their lifecycle.
//
// Store is the only mutation surface. Update performs an atomic
// read-modify-write on a single job, so stage transitions, lease claims and
// error updates never interleave. Three backends implement it: an in-memory
// map of immutable snapshots, SQLite (the default, via Open), and PostgreSQL
// in the pgstore subpackage.
//
// The transition helpers on Job (StartStage, CompleteStage, FailStage, Fail,
// Claim, Renew, Release) enforce the lifecycle invariants regardless of
// backend. Call them inside Update rather than editing fields directly.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
