package wsclient

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConnected is wrapped by ConnectionError when Connect is called
	// while a connection is still live.
	ErrAlreadyConnected = errors.New("connection already active")

	// ErrInvalidURI is wrapped by ConnectionError for malformed targets.
	ErrInvalidURI = errors.New("invalid uri")

	// ErrUnknownEngine is returned by New for an unsupported Options.Engine.
	ErrUnknownEngine = errors.New("unknown transport engine")

	// ErrHandleReleased is returned when a Handle is used after its last
	// reference was released.
	ErrHandleReleased = errors.New("handle already released")
)

// ConnectionError reports a failure to open a connection.
type ConnectionError struct {
	URI string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NotConnectedError reports an operation that needs a connection in a
// different state.
type NotConnectedError struct {
	Op    string
	State State
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s: not connected to server (state %s)", e.Op, e.State)
}

// TransportError wraps a failure raised by the transport engine.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
