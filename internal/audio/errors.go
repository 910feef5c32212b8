package audio

import "errors"

// Pipeline errors
var (
	ErrPipelineRunning    = errors.New("audio pipeline is already running")
	ErrPipelineNotRunning = errors.New("audio pipeline is not running")
	ErrNoStreamingState   = errors.New("no streaming state for session")
)
