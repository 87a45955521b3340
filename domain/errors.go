package domain

import "errors"

var (
	// ErrNotFound indicates that an entity, or a link in a resolution chain
	// (task -> board -> project), does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the requester resolved to a project but is not a
	// member, or lacks the role the operation requires.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation indicates malformed input detected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates that a concurrent mutation won the race for the
	// same board and the caller's view of it is stale.
	ErrConflict = errors.New("concurrency conflict")
)
