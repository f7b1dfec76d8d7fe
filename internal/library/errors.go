package library

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClaimed is returned when a wanted item already has a
	// committed match.
	ErrAlreadyClaimed = errors.New("wanted item already claimed")
)
