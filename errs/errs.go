// Package errs holds the error taxonomy shared by the sync engine.
//
// Sentinels are matched with errors.Is. InvalidArgument is never retried, TransientRemote is retried by
// retry.Policy, PartialWrite marks a partition left empty by a failed insert, and UpstreamSkipped /
// GuardedNoOp are skip reasons rather than failures.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTransientRemote = errors.New("transient remote error")
	ErrPartialWrite    = errors.New("partial write")
	ErrUpstreamSkipped = errors.New("upstream skipped")
	ErrGuardedNoOp     = errors.New("guarded no-op")
)

// InvalidArgument returns an error that matches ErrInvalidArgument.
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %v", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// transientError marks a cause as retryable while keeping it reachable via errors.As/Is.
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

func (e *transientError) Is(target error) bool {
	return target == ErrTransientRemote
}

// TransientRemote wraps err so that it matches ErrTransientRemote.
// A nil err yields nil.
func TransientRemote(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// StatusError is a non-2xx response from a remote HTTP API.
// 5xx responses match ErrTransientRemote; anything else is fatal.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote status %v: %v", e.Code, e.Body)
	}
	return fmt.Sprintf("remote status %v", e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrTransientRemote && e.Code >= 500
}

// PartialWriteError reports that a partition was deleted but the insert that should refill it failed.
// The partition is empty until an idempotent reload succeeds.
type PartialWriteError struct {
	Table     string
	Partition string
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write to %v partition %v: insert failed after delete: %v", e.Table, e.Partition, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

func (e *PartialWriteError) Is(target error) bool {
	return target == ErrPartialWrite
}

// IsSkip returns true if err is a skip reason rather than a failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrUpstreamSkipped) || errors.Is(err, ErrGuardedNoOp)
}
