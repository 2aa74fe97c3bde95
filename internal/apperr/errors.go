package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid")
	ErrNoSession     = errors.New("no such preview session")
	ErrUnsupported   = errors.New("unsupported for this asset kind")
	ErrBusy          = errors.New("busy")
)
