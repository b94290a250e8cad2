package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reelforge/internal/stage"
)

// Kind classifies a pipeline failure. The classifier switches on it.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindProcessing      Kind = "processing"
	KindExternalService Kind = "external_service"
	KindStorage         Kind = "storage"
	KindCancelled       Kind = "cancelled"
)

var (
	ErrValidation      = errors.New("validation failure")
	ErrProcessing      = errors.New("processing failure")
	ErrExternalService = errors.New("external service failure")
	ErrStorage         = errors.New("storage failure")
	ErrCancelled       = errors.New("cancelled")
)

// Kinds lists every failure kind in classification order.
func Kinds() []Kind {
	return []Kind{KindValidation, KindProcessing, KindExternalService, KindStorage, KindCancelled}
}

// Marker returns the sentinel error matching the kind.
func (k Kind) Marker() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindExternalService:
		return ErrExternalService
	case KindStorage:
		return ErrStorage
	case KindCancelled:
		return ErrCancelled
	default:
		return ErrProcessing
	}
}

// Failure is the error half of a stage result.
type Failure struct {
	Kind      Kind
	Stage     stage.ID
	Attempt   int
	Operation string
	Message   string
	Hint      string
	Cause     error
}

func (f *Failure) Error() string {
	detail := buildDetail(string(f.Stage), f.Operation, f.Message)
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind.Marker(), detail, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind.Marker(), detail)
}

func (f *Failure) Unwrap() error { return f.Cause }

// Is matches the sentinel marker for the failure kind.
func (f *Failure) Is(target error) bool {
	return target == f.Kind.Marker()
}

// Detail returns the most specific human-readable description available.
func (f *Failure) Detail() string {
	if msg := strings.TrimSpace(f.Message); msg != "" {
		return msg
	}
	if f.Cause != nil {
		return strings.TrimSpace(f.Cause.Error())
	}
	return string(f.Kind)
}

// Wrap builds a Failure with stage context. The kind decides later whether
// the orchestrator retries, fails, or skips.
func Wrap(kind Kind, stageID stage.ID, operation, message string, err error) error {
	return &Failure{
		Kind:      kind,
		Stage:     stageID,
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// WithHint attaches an operator hint to a failure produced by Wrap.
func WithHint(err error, hint string) error {
	var failure *Failure
	if errors.As(err, &failure) {
		failure.Hint = strings.TrimSpace(hint)
	}
	return err
}

// AsFailure normalizes any error into a Failure. Embedded failures keep their
// kind; deadline overruns take the fallback kind; cancellations become
// KindCancelled; everything else takes the fallback kind.
func AsFailure(err error, fallback Kind) *Failure {
	if err == nil {
		return nil
	}
	var failure *Failure
	if errors.As(err, &failure) {
		clone := *failure
		return &clone
	}
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return &Failure{Kind: KindCancelled, Message: "cancelled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: fallback, Message: "timed out", Cause: err}
	}
	for _, kind := range Kinds() {
		if errors.Is(err, kind.Marker()) {
			return &Failure{Kind: kind, Cause: err}
		}
	}
	return &Failure{Kind: fallback, Cause: err}
}

// KindOf reports the failure kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind, true
	}
	return "", false
}

func buildDetail(stageName, operation, message string) string {
	parts := make([]string, 0, 3)
	if stageName = strings.TrimSpace(stageName); stageName != "" {
		parts = append(parts, stageName)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
