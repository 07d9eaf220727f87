package orchestrator

import (
	"errors"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrTimeout marks a build that never reported a deployed site in time.
	ErrTimeout = errors.New("build timed out")
	// ErrClosed is returned by Create after Close.
	ErrClosed = errors.New("orchestrator is shut down")

	errUnchanged = errors.New("nothing to update")
)

// ValidationError describes a rejected creation request. The job is never created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
