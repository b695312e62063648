package domain

import "errors"

var (
	// ErrNotFound indicates that a referenced project, task or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates that the caller does not own the referenced resource.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput indicates malformed or out of contract input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable indicates a transient persistence failure. Nothing was
	// committed and the caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConstraintViolation indicates that the store rejected a write, for
	// example a duplicate (project, position) pair or a duplicate email.
	ErrConstraintViolation = errors.New("constraint violation")
)
