package apperrors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrNoTenantScope = errors.New("no tenant scope in context")
)
