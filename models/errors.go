package models

import "errors"

// Domain sentinels shared by the repositories and engines. The HTTP layer
// maps these to status codes.
var (
	// ErrNotFound covers both genuinely missing rows and rows the caller is
	// not allowed to know exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is a state transition attempted from an unexpected prior
	// state. Never silently overwritten.
	ErrConflict = errors.New("conflicting state transition")
	// ErrNotAuthorized is an entitlement or ownership failure.
	ErrNotAuthorized = errors.New("not authorized")
)
