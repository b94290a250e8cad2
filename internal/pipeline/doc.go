// Package pipeline binds the collaborator ports to stage handlers.
//
// Each handler reads earlier stage outputs, calls one collaborator, and
// records its result. Structured results are written as JSON artifacts in
// the job work directory (transcript.json, highlights.json, plan.json,
// broll.json) and the artifact path becomes the stage output. Video stages
// output file paths, the transcript store outputs a reference, and the
// upload stage outputs the public URL that completes the job.
package pipeline
