package db

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert violates a unique
	// constraint, e.g. two articles with the same (account_id, guid).
	ErrDuplicate = errors.New("duplicate row")
)
