package world

import "errors"

// Error kinds surfaced by character creation and arena membership.
// Callers wrap them with context and test with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrDuplicateID   = errors.New("duplicate character id")
	ErrNotFound      = errors.New("character not found")
	ErrInvalidAction = errors.New("invalid action")
)
