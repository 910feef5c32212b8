package websocket

import "errors"

var (
	ErrConnectionClosed        = errors.New("connection is closed")
	ErrInvalidJSON             = errors.New("failed to marshal message")
	ErrWriteTimeout            = errors.New("write timeout exceeded")
	ErrNilConnection           = errors.New("connection is nil")
	ErrConnectionNotRegistered = errors.New("connection has not registered")
	ErrHeartbeatRunning        = errors.New("heartbeat loop is already running")
	ErrHeartbeatNotRunning     = errors.New("heartbeat loop is not running")
)
