package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a row is absent or not
	// visible to the requesting party.
	ErrNotFound = errors.New("not found")

	// ErrTxConflict is returned when the storage layer loses a
	// serialization or lock conflict; the caller may retry with a fresh
	// read.
	ErrTxConflict = errors.New("transaction conflict")
)
