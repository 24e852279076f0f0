package repository

import "errors"

var (
	// ErrNotFound is returned when a row is absent or owned by another user.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("already exists")
)
