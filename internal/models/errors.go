package models

import "errors"

// Sentinel errors for document lookups.
var (
	ErrNotFound           = errors.New("object not found")
	ErrInvalidCredentials = errors.New("invalid username/password")
	ErrSessionMissing     = errors.New("no session for user")
)

// Sentinel errors for document shape.
var (
	ErrMissingClass    = errors.New("className is required")
	ErrMissingObjectID = errors.New("objectId is required")
	ErrInvalidPointer  = errors.New("invalid pointer")
	ErrInvalidHistory  = errors.New("history is not a list of entries")
	ErrNotArray        = errors.New("field is not an array")
)
