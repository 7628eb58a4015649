package contracts

import (
	"errors"
	"fmt"
)

// Error kinds of a consultation run.
// Only ErrRegistry and ErrStorage abort a run; the rest are per-instance outcomes.
var (
	ErrRegistry = errors.New("registry failure")
	ErrConfig   = errors.New("instance configuration error")
	ErrStorage  = errors.New("snapshot storage failure")
	ErrTimeout  = errors.New("evaluation timed out")
	ErrParse    = errors.New("evaluator output could not be parsed")
)

// RunError is returned when a consultation run aborts at a stage
type RunError struct {
	RunID string
	Stage Stage
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("consultation %s aborted at %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
