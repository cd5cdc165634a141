package session

import "errors"

// Session registry error types
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNilConnection   = errors.New("connection cannot be nil")
)
