// Package apperr holds the error kinds shared across the engine.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	// ErrParse marks a malformed on-disk record. Scans log and skip it.
	ErrParse = errors.New("parse error")
	// ErrExternalService wraps failures of the embedding model or vector backend.
	ErrExternalService = errors.New("external service error")
	// ErrDimensionMismatch is fatal for the vector index: writes stay halted until it is cleared.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
