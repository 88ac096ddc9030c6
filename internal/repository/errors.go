package repository

import "errors"

var (
	// ErrResultExists is returned when a test result is recorded twice.
	ErrResultExists = errors.New("test result already recorded")
	// ErrAlreadyReviewed is returned when a reviewed row is reviewed again.
	ErrAlreadyReviewed = errors.New("already reviewed")
)
