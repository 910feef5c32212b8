package router

import "errors"

var (
	// ErrRateLimitExceeded indicates a connection outran its message budget.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
