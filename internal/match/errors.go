package match

import "errors"

var (
	// ErrNotFound is returned when a pending match is not found.
	ErrNotFound = errors.New("pending match not found")

	// ErrAlreadyResolved is returned when a match that already has a
	// target is committed again.
	ErrAlreadyResolved = errors.New("match already resolved")

	// ErrVerificationFinal is returned when a confirmed or rejected
	// verification would be overwritten.
	ErrVerificationFinal = errors.New("verification already final")
)
