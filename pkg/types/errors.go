package types

import (
	"errors"
	"fmt"
)

// ARCHITECTURAL DISCOVERY: Error kinds are sentinels so handlers return values
// and callers classify them with errors.Is instead of catching by type
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrAuthorization  = errors.New("not authorized")
	ErrCapacity       = errors.New("capacity exceeded")
	ErrTransport      = errors.New("transport failure")
	ErrUnknownCommand = errors.New("unknown command")
)

// Field validation errors
var (
	ErrInvalidSettings = errors.New("board settings must have positive width, height and grid size and a background color")
	ErrEmptyStroke     = errors.New("stroke must contain at least one point")
)

// CommandError is the result of a command that failed for the sender only.
// Message is safe to show to the client; Kind is one of the sentinels above.
type CommandError struct {
	Kind    error
	Message string
}

func (e *CommandError) Error() string {
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Kind
}

func newCommandError(kind error, format string, args ...interface{}) *CommandError {
	return &CommandError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf reports a missing or malformed field
func Validationf(format string, args ...interface{}) *CommandError {
	return newCommandError(ErrValidation, format, args...)
}

// NotFoundf reports an unknown room id
func NotFoundf(format string, args ...interface{}) *CommandError {
	return newCommandError(ErrNotFound, format, args...)
}

// Unauthorizedf reports a command from a session that may not issue it
func Unauthorizedf(format string, args ...interface{}) *CommandError {
	return newCommandError(ErrAuthorization, format, args...)
}

// Capacityf reports a full room
func Capacityf(format string, args ...interface{}) *CommandError {
	return newCommandError(ErrCapacity, format, args...)
}

// UnknownCommandf reports an unrecognized type tag
func UnknownCommandf(format string, args ...interface{}) *CommandError {
	return newCommandError(ErrUnknownCommand, format, args...)
}

// ClientMessage extracts the text to send back to a client for err.
// Errors that are not CommandErrors are internal and get a generic message.
func ClientMessage(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Message
	}
	return "Internal error processing message"
}
