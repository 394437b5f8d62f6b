package models

import "errors"

// Domain error kinds shared across services. Component-specific kinds
// (provider failures, index schema conflicts, empty extraction) live in the
// packages that raise them; handlers translate all of them to HTTP statuses.
var (
	// ErrInputInvalid marks a client fault: malformed request, unsupported
	// file type, missing required field.
	ErrInputInvalid = errors.New("invalid input")

	// ErrStateConflict marks an operation forbidden in the current state,
	// e.g. re-processing a completed document or changing the embedding
	// model after vectors exist.
	ErrStateConflict = errors.New("state conflict")

	// ErrNotFound marks a missing resource.
	ErrNotFound = errors.New("not found")
)
