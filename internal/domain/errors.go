package domain

import "errors"

var (
	// ErrNotAuthenticated es un error de programacion: backend remoto sin identidad.
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrAnalysisFailed      = errors.New("analysis failed")
	ErrMigrationIncomplete = errors.New("migration incomplete")

	ErrNotFound           = errors.New("not found")
	ErrUnknownModule      = errors.New("unknown module")
	ErrModuleKindMismatch = errors.New("module kind mismatch")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRemoteUnavailable  = errors.New("remote backend unavailable")
	ErrIdentityConflict   = errors.New("identity conflict")
)
