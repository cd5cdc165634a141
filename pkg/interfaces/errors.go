package interfaces

import "errors"

// Common collaborator errors used across components
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrBlobNotFound = errors.New("file not found")
)
