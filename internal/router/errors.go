package router

import (
	"errors"

	"edujam/pkg/types"
)

// Dispatcher construction errors
var (
	ErrNilHub       = errors.New("dispatcher requires a hub")
	ErrNilChatStore = errors.New("chat dispatcher requires a chat store")
	ErrNilResponder = errors.New("chat dispatcher requires an ai responder")
	ErrNilBlobStore = errors.New("chat dispatcher requires a blob store")
	ErrNilTracker   = errors.New("chat dispatcher requires an upload tracker")
)

// Client-facing failures shared by every channel
var (
	errInvalidFormat = types.Validationf("Invalid message format")
	errMissingType   = types.Validationf("Message type is required")
	errRateLimited   = types.Validationf("Rate limit exceeded")
)
