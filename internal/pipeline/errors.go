package pipeline

import (
	"errors"
	"fmt"
)

// JobError is the outcome of a failed job. Retryable failures leave the queue
// entry pending for redelivery or the sweeper; the rest are dropped.
type JobError struct {
	Stage     string
	Retryable bool
	Err       error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func retryable(stage string, err error) *JobError {
	return &JobError{Stage: stage, Retryable: true, Err: err}
}

// IsRetryable reports whether err leaves the entry pending. Errors that are
// not a *JobError are treated as retryable.
func IsRetryable(err error) bool {
	var je *JobError
	if errors.As(err, &je) {
		return je.Retryable
	}
	return err != nil
}
