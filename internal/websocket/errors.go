package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write queue timeout")
)

// Handler-related errors
var (
	ErrNilHub        = errors.New("hub cannot be nil")
	ErrNilDispatcher = errors.New("dispatcher cannot be nil")
)
