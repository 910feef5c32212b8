package types

import "errors"

// Envelope validation errors
var (
	ErrUnknownMessageType   = errors.New("unknown message type")
	ErrInvalidRole          = errors.New("role must be 'teacher' or 'student'")
	ErrInvalidLanguageCode  = errors.New("invalid language code")
	ErrInvalidClassroomCode = errors.New("classroom code must be 6 characters")
	ErrEmptyText            = errors.New("text cannot be empty")
	ErrEmptyAudioChunk      = errors.New("audio chunk cannot be empty")
)
