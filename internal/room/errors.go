package room

import "errors"

// Room directory errors
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrNoSubscriber  = errors.New("room must be created with a subscribing session")
	ErrRoomExists    = errors.New("room already exists")
	ErrWrongRoomKind = errors.New("room is of a different kind")

	ErrSessionNotConnected = errors.New("session not connected")
)
