package download

import "errors"

var (
	// ErrNotFound is returned when a task record is not found.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned for a disallowed state change.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrBackendUnavailable is returned when the download backend
	// cannot be reached.
	ErrBackendUnavailable = errors.New("download backend unavailable")
)
