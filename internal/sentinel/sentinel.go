package sentinel

import "errors"

// Sentinel dependency errors. Stores and providers should return these
// (optionally wrapped) so services can translate them into domain errors
// exactly once.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyResolved = errors.New("already resolved")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnavailable     = errors.New("unavailable")
)
