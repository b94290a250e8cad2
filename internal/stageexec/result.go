package stageexec

import (
	"strings"

	"reelforge/internal/services"
	"reelforge/internal/stage"
)

// Outputs maps completed stages to their output paths. A skipped optional
// stage maps to "".
type Outputs map[stage.ID]string

// Clone returns an independent copy.
func (o Outputs) Clone() Outputs {
	out := make(Outputs, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Result is what a stage handler returns: either an output path or a
// classified failure, never both.
type Result struct {
	output  string
	failure *services.Failure
}

// Ok builds a successful result.
func Ok(output string) Result {
	return Result{output: strings.TrimSpace(output)}
}

// Err builds a failed result. A nil failure becomes a processing failure so
// the result is never ambiguous.
func Err(failure *services.Failure) Result {
	if failure == nil {
		failure = &services.Failure{Kind: services.KindProcessing, Message: "stage failed without detail"}
	}
	clone := *failure
	return Result{failure: &clone}
}

// FromError adapts a collaborator's (value, error) return. Errors that carry
// no failure kind take fallback.
func FromError(output string, err error, fallback services.Kind) Result {
	if err != nil {
		return Err(services.AsFailure(err, fallback))
	}
	return Ok(output)
}

// IsOk reports whether the handler succeeded.
func (r Result) IsOk() bool { return r.failure == nil }

// Output returns the stage output for an Ok result.
func (r Result) Output() string { return r.output }

// Failure returns the failure for an Err result, or nil.
func (r Result) Failure() *services.Failure { return r.failure }
