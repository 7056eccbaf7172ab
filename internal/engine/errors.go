package engine

import (
	"errors"
	"fmt"
	"streamjobs/internal/model"
)

var (
	ErrAlreadyRunning = errors.New("job already running")
	ErrJobNotFound    = errors.New("job not found")
	ErrShuttingDown   = errors.New("registry is shutting down")
	ErrItemTimeout    = errors.New("item timed out")
)

// AlreadyRunningError is returned by Start while a job for the same owner and
// kind has not reached a terminal state. It matches ErrAlreadyRunning.
type AlreadyRunningError struct {
	OwnerID string
	Kind    model.Kind
	JobID   string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("%s job %s already running for %s", e.Kind, e.JobID, e.OwnerID)
}

func (e *AlreadyRunningError) Is(target error) bool {
	return target == ErrAlreadyRunning
}
