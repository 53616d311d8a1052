package shared

import "errors"

var (
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName indicates a uniqueness violation on a name column.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrForbidden indicates a protected record rejected the mutation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates deletion is blocked by live references.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input rejected before the core.
	ErrValidation = errors.New("validation failed")
)
