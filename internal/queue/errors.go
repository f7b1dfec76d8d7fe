package queue

import "errors"

// ErrClosed is returned when submitting to a closed queue.
var ErrClosed = errors.New("queue closed")

// transientError marks an error as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps an error to mark it as retryable (timeouts,
// server-side failures). Unwrapped errors are treated as terminal.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
