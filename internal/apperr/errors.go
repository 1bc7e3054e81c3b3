// Package apperr defines the pipeline error taxonomy.
package apperr

import (
	"errors"
	"fmt"

	"casewatch/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// Judgment client failure modes.
	ErrTimeout     = errors.New("timeout")
	ErrUnreachable = errors.New("unreachable")
	ErrMalformed   = errors.New("malformed response")
)

// StageError wraps a stage failure with the stage it occurred in and
// whether the failure is transient (eligible for retry with backoff).
// Content errors are not transient: they require the input file to
// change before reprocessing.
type StageError struct {
	Stage     models.Stage
	Transient bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Stage wraps err as a non-transient failure in the given stage.
func Stage(stage models.Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// Transient wraps err as a retryable failure in the given stage.
func Transient(stage models.Stage, err error) *StageError {
	return &StageError{Stage: stage, Transient: true, Err: err}
}

// AsStage extracts a StageError from err, or wraps err as a
// non-transient failure in fallback when it carries no stage.
func AsStage(err error, fallback models.Stage) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return Stage(fallback, err)
}
