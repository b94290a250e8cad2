package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrJobExists is returned by Create when the id is already stored.
	ErrJobExists = errors.New("job already exists")
	// ErrJobTerminal is returned when a completed or failed job is mutated.
	ErrJobTerminal = errors.New("job is terminal")
	// ErrInvalidTransition reports a stage or job transition the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrLeaseHeld is returned when another orchestration run owns the job.
	ErrLeaseHeld = errors.New("job lease held by another run")
	// ErrLeaseLost is returned when a run no longer owns the job it is mutating.
	ErrLeaseLost = errors.New("job lease lost")
)

// JobNotFoundError reports a job id that does not resolve in the store.
type JobNotFoundError struct {
	ID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job %q not found", e.ID)
}

// IsNotFound reports whether err carries a JobNotFoundError.
func IsNotFound(err error) bool {
	var notFound *JobNotFoundError
	return errors.As(err, &notFound)
}
