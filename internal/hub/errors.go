package hub

import (
	"errors"

	"edujam/internal/room"
)

// Hub and sweeper error types
var (
	ErrSweeperAlreadyRunning = errors.New("sweeper is already running")
	ErrSweeperNotRunning     = errors.New("sweeper is not running")
	ErrSessionNotConnected   = room.ErrSessionNotConnected
	ErrInvalidInterval       = errors.New("sweep interval must be positive")
)
