// Package remote defines the contracts for the external systems the pipeline
// drives: schedulers that run jobs and data systems that move files. The
// workers depend only on these interfaces; concrete protocol clients plug in
// behind them.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// RemoteStatus is the scheduler-side view of a submitted job.
type RemoteStatus string

const (
	StatusQueued   RemoteStatus = "QUEUED"
	StatusRunning  RemoteStatus = "RUNNING"
	StatusPaused   RemoteStatus = "PAUSED"
	StatusFinished RemoteStatus = "FINISHED"
	StatusNotFound RemoteStatus = "NOT_FOUND"
	StatusUnknown  RemoteStatus = "UNKNOWN"
)

// Active reports whether the remote job is still occupying the scheduler.
func (s RemoteStatus) Active() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusPaused:
		return true
	}
	return false
}

// SubmitRequest carries what a scheduler needs to accept a job.
type SubmitRequest struct {
	JobUUID         string
	TenantID        string
	Owner           string
	ExecutionSystem string
	AppID           string
	BatchQueue      string
}

// Submitter places jobs on a remote scheduler and tracks them afterwards.
type Submitter interface {
	// Submit hands the job to the scheduler and returns the scheduler's
	// own identifier for it.
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	// Status reports the scheduler-side state of a previously submitted job.
	Status(ctx context.Context, system, localJobID string) (RemoteStatus, error)
	// Cancel asks the scheduler to stop a job. Cancelling an already
	// finished job is not an error.
	Cancel(ctx context.Context, system, localJobID string) error
}

// DataClient moves files between storage systems.
type DataClient interface {
	// Authenticate verifies the client can reach and act on the system.
	Authenticate(ctx context.Context, system string) error
	// Exists reports whether a path exists on the system.
	Exists(ctx context.Context, system, path string) (bool, error)
	// Transfer copies data from a source URI to a destination on the
	// system, blocking until the copy settles or ctx expires.
	Transfer(ctx context.Context, sourceURI, system, destPath string) error
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks an error as non-retryable: the operation failed in a way that
// repeating it cannot fix (bad credentials, missing app definition).
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Fatalf is Fatal over a formatted error.
func Fatalf(format string, args ...any) error {
	return &fatalError{err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether the error was marked non-retryable.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
