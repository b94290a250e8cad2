// Package workflow drives jobs through the stage registry.
//
// Orchestrator.Run owns one job at a time: it claims the job's lease in the
// store, renews it from a heartbeat loop, resumes at the first stage without
// a completed or skipped record, and hands each stage to stageexec. Stage
// failures end the run with a failed job; shutdown leaves the job processing
// so the next run picks it up.
//
// Manager runs orchestrations on a worker pool. A poll loop feeds it queued
// jobs and processing jobs whose lease expired, Submit schedules a job
// explicitly, and Cancel interrupts a run with services.ErrCancelled as the
// context cause so the job fails as cancelled rather than being resumed.
package workflow
