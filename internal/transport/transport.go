// Package transport abstracts the WebSocket engine that owns the wire protocol.
// Each subpackage adapts one WebSocket library to these interfaces.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrCloseSent is returned by WriteText once the closing handshake has started.
var ErrCloseSent = errors.New("close frame already sent")

// ErrMessageTooLarge is returned by Run when a message exceeds ReadLimit.
var ErrMessageTooLarge = errors.New("message exceeds read limit")

// DialOptions tunes a single dial.
type DialOptions struct {
	// HandshakeTimeout bounds the TCP connect plus opening handshake.
	HandshakeTimeout time.Duration

	// CloseTimeout bounds how long Run waits for the peer's close frame
	// after Close has been called.
	CloseTimeout time.Duration

	// ReadLimit is the maximum accepted message size in bytes, summed over
	// all frames of a fragmented message. Zero keeps the engine's default.
	ReadLimit int64

	// Logger receives engine-level diagnostics such as dropped frames.
	Logger zerolog.Logger
}

// Engine opens client sessions.
type Engine interface {
	// Name identifies the engine in logs and configuration.
	Name() string

	// Dial performs the opening handshake with uri.
	Dial(ctx context.Context, uri string, opts DialOptions) (Session, error)
}

// Session is one open WebSocket connection.
type Session interface {
	// Run reads frames until the connection terminates, calling onText once
	// per text message in arrival order. Control frames are answered
	// internally and binary messages are dropped.
	// Run returns nil after a clean closing handshake.
	Run(onText func(string)) error

	// WriteText sends one text message. It returns once the frame has been
	// handed to the socket, not when the peer has seen it.
	WriteText(ctx context.Context, text string) error

	// Close starts the closing handshake with a normal closure status.
	// Run returns once the handshake completes or CloseTimeout elapses.
	Close(reason string) error

	// Abort tears the underlying connection down without a handshake.
	Abort() error

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
}

// DefaultCloseTimeout is used when DialOptions.CloseTimeout is zero.
const DefaultCloseTimeout = 5 * time.Second

// CloseWait returns the effective close timeout.
func (o DialOptions) CloseWait() time.Duration {
	if o.CloseTimeout <= 0 {
		return DefaultCloseTimeout
	}
	return o.CloseTimeout
}

// Close status codes from RFC 6455 section 7.4.1 that count as a clean end.
const (
	StatusNormalClosure = 1000
	StatusGoingAway     = 1001
	StatusNoStatus      = 1005
)

// CloseError reports that the peer ended the connection with an abnormal
// status code.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("peer closed connection with status %d", e.Code)
	}
	return fmt.Sprintf("peer closed connection with status %d: %s", e.Code, e.Reason)
}

// PeerClosed maps a close frame received from the peer to Run's result.
func PeerClosed(code int, reason string) error {
	switch code {
	case StatusNormalClosure, StatusGoingAway, StatusNoStatus:
		return nil
	}
	return &CloseError{Code: code, Reason: reason}
}
