package models

import "errors"

// Domain errors surfaced by the messaging core. Handlers map these to HTTP
// status codes with errors.Is.
var (
	ErrEmptyMessage = errors.New("message cannot be empty")
	ErrMediaUpload  = errors.New("media upload failed")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidMode  = errors.New("invalid delete mode")
	ErrUnauthorized = errors.New("unauthorized")
)
