package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrInvalidInput - malformed action params or request payload
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - unknown action, task, slot or remote resource
	ErrNotFound = errors.New("not found")

	// ErrConflict - duplicate task id or a task settled twice
	ErrConflict = errors.New("conflict")

	// ErrTransient - lock contention or rate limiting, safe to retry
	ErrTransient = errors.New("transient error")

	// ErrServer - chat backend answered with a 5xx status
	ErrServer = errors.New("chat service unavailable")

	// ErrNetwork - chat backend could not be reached
	ErrNetwork = errors.New("network error")

	// ErrMalformedResponse - chat backend answered with a body that is not the expected JSON
	ErrMalformedResponse = errors.New("malformed response")

	// ErrStatus - chat backend answered with a non-success status other than 5xx
	ErrStatus = errors.New("unexpected status")

	// ErrExecution - an action ran and failed
	ErrExecution = errors.New("action failed")

	// ErrInternal - invariant violation or unexpected failure
	ErrInternal = errors.New("internal error")
)
