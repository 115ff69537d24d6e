package stages

import (
	"errors"
	"fmt"
)

// StageError reports a pipeline failure that is not a problem with the
// input: a stage that panicked or a run that was cancelled.
type StageError struct {
	// Code identifies the error category.
	Code StageErrorCode

	// Stage names the stage that was running, if any.
	Stage string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// StageErrorCode categorizes stage errors.
type StageErrorCode string

const (
	// ErrCodePanic indicates a stage panicked.
	ErrCodePanic StageErrorCode = "STAGE_PANIC"

	// ErrCodeCancelled indicates the context ended before the run finished.
	ErrCodeCancelled StageErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s (stage=%s)", e.Code, e.Message, e.Stage)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error { return e.Err }

// IsPanic reports whether err is a StageError for a panicking stage.
func IsPanic(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Code == ErrCodePanic
}

// IsCancelled reports whether err is a StageError for a cancelled run.
func IsCancelled(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Code == ErrCodeCancelled
}
