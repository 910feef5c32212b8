package session

import "errors"

var (
	// ErrTeacherIDRequired indicates a teacher registration without a
	// durable teacher identifier.
	ErrTeacherIDRequired = errors.New("teacher id is required")

	// ErrCodeSpaceExhausted indicates repeated collisions while drawing a
	// fresh classroom code.
	ErrCodeSpaceExhausted = errors.New("unable to generate a unique classroom code")
)
