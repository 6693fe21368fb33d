package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a conditional write's WHERE clause
	// matched zero rows because another writer already moved the row
	// past the expected state.
	ErrConflict = errors.New("entity no longer matches expected state")
)
