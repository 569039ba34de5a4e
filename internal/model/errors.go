package model

import "errors"

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for workflow actions that are not
	// legal from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInUse is returned when deleting a row that is still referenced.
	ErrInUse = errors.New("still in use")

	// ErrInvalidInput is returned for values rejected by business rules.
	ErrInvalidInput = errors.New("invalid input")
)
