// Package classifier maps a stage failure to the orchestrator's next move.
//
// Classify is pure: it never sleeps, retries, or touches the store.
package classifier

import (
	"fmt"
	"time"

	"reelforge/internal/services"
	"reelforge/internal/stage"
)

// Action is the orchestrator's response to a failure.
type Action string

const (
	ActionRetry Action = "retry"
	ActionFail  Action = "fail"
	// ActionSkip is decided by the orchestrator for optional stages. Classify
	// never returns it.
	ActionSkip Action = "skip"
)

// Resolution is the outcome of classifying one failure.
type Resolution struct {
	Action      Action
	Delay       time.Duration
	UserMessage string
}

// Policy bounds retries for retryable kinds.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// DefaultPolicy allows three attempts with delays of 1s then 2s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Classify resolves failure using the default policy.
func Classify(failure *services.Failure) Resolution {
	return DefaultPolicy().Classify(failure)
}

// Classify resolves failure. Attempt numbers are zero-based; attempt n of a
// retryable kind waits 2^n * BaseDelay unless it is the last allowed attempt.
func (p Policy) Classify(failure *services.Failure) Resolution {
	p = p.normalized()
	if failure == nil {
		return Resolution{Action: ActionFail, UserMessage: "stage failed without detail"}
	}
	label := stage.Label(failure.Stage)
	if label == "" {
		label = "Pipeline"
	}
	detail := failure.Detail()

	switch failure.Kind {
	case services.KindValidation:
		return Resolution{Action: ActionFail, UserMessage: fmt.Sprintf("%s rejected the input: %s", label, detail)}
	case services.KindProcessing:
		return Resolution{Action: ActionFail, UserMessage: fmt.Sprintf("%s failed: %s", label, detail)}
	case services.KindCancelled:
		return Resolution{Action: ActionFail, UserMessage: fmt.Sprintf("%s cancelled", label)}
	case services.KindExternalService, services.KindStorage:
		return p.retryable(failure, label, detail)
	default:
		return Resolution{Action: ActionFail, UserMessage: fmt.Sprintf("%s failed: %s", label, detail)}
	}
}

func (p Policy) retryable(failure *services.Failure, label, detail string) Resolution {
	attempt := failure.Attempt
	if attempt < 0 {
		attempt = 0
	}
	noun := "external service"
	if failure.Kind == services.KindStorage {
		noun = "storage"
	}
	if attempt >= p.MaxAttempts-1 {
		return Resolution{
			Action:      ActionFail,
			UserMessage: fmt.Sprintf("%s failed after %d attempts (%s): %s", label, attempt+1, noun, detail),
		}
	}
	delay := p.BaseDelay << uint(attempt)
	return Resolution{
		Action:      ActionRetry,
		Delay:       delay,
		UserMessage: fmt.Sprintf("%s hit a %s error, retrying in %s (attempt %d of %d): %s", label, noun, delay, attempt+2, p.MaxAttempts, detail),
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}
