// Package errors provides typed error handling for the lmkd-go daemons.
//
// It mirrors the error taxonomy of the original low-memory killer: most
// failures are either per-task (skip and continue the scan) or
// infrastructure-level (abort the process with a diagnostic). All errors
// support errors.Is()/errors.As() for inspection.
package errors

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DaemonError by where in the kill-decision engine
// it originated.
type ErrorKind int

const (
	// ErrMissingPerTask indicates a /proc/<pid>/* file vanished between
	// enumeration and read. Non-fatal: the caller skips the task.
	ErrMissingPerTask ErrorKind = iota
	// ErrParsePerTask indicates a malformed /proc/<pid>/stat record.
	ErrParsePerTask
	// ErrMissingInfra indicates /proc/meminfo, shared memory, or a mount
	// point could not be opened. Fatal.
	ErrMissingInfra
	// ErrCgroupSetup indicates the cgroup hierarchy itself could not be
	// built (mount/mkdir of the controller). Fatal.
	ErrCgroupSetup
	// ErrCgroupPerTask indicates a per-task cgroup operation (assigning a
	// pid to a class) failed, typically because the task already exited.
	ErrCgroupPerTask
	// ErrPressureIO indicates a read/write of an eventfd or usage file
	// failed. Fatal.
	ErrPressureIO
	// ErrInvalidConfig indicates a bad CLI flag or config value.
	ErrInvalidConfig
	// ErrNotFound indicates a requested resource (task, cgroup class) does
	// not exist.
	ErrNotFound
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrMissingPerTask:
		return "missing per-task file"
	case ErrParsePerTask:
		return "per-task parse error"
	case ErrMissingInfra:
		return "missing infrastructure"
	case ErrCgroupSetup:
		return "cgroup setup error"
	case ErrCgroupPerTask:
		return "cgroup per-task error"
	case ErrPressureIO:
		return "pressure I/O error"
	case ErrInvalidConfig:
		return "invalid config"
	case ErrNotFound:
		return "not found"
	default:
		return "unknown error"
	}
}

// DaemonError represents an error that occurred in one of the daemon
// components.
type DaemonError struct {
	// Op is the operation that failed (e.g. "probe", "setup_events").
	Op string
	// Detail provides additional context about the error.
	Detail string
	// Err is the underlying error, if any.
	Err error
	// Kind is the error classification.
	Kind ErrorKind
}

// Error returns the error message.
func (e *DaemonError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := ""
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DaemonError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target, comparing by Kind when
// the target is also a *DaemonError.
func (e *DaemonError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*DaemonError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new DaemonError with the given kind.
func New(kind ErrorKind, op, detail string) *DaemonError {
	return &DaemonError{Op: op, Kind: kind, Detail: detail}
}

// Wrap wraps an error with a kind and operation.
func Wrap(err error, kind ErrorKind, op string) *DaemonError {
	return &DaemonError{Op: op, Kind: kind, Err: err}
}

// WrapWithDetail wraps an error with a kind, operation, and extra detail.
func WrapWithDetail(err error, kind ErrorKind, op, detail string) *DaemonError {
	return &DaemonError{Op: op, Kind: kind, Err: err, Detail: detail}
}

// IsKind reports whether err is a *DaemonError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var derr *DaemonError
	if errors.As(err, &derr) {
		return derr.Kind == kind
	}
	return false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
