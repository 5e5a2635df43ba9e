// Package gorilla implements the transport engine with github.com/gorilla/websocket.
package gorilla

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omochice/syncws/internal/transport"
)

// Engine dials client sessions using gorilla/websocket.
type Engine struct{}

// New creates a gorilla Engine.
func New() *Engine {
	return &Engine{}
}

// Name implements transport.Engine.
func (e *Engine) Name() string {
	return "gorilla"
}

// Dial implements transport.Engine.
func (e *Engine) Dial(ctx context.Context, uri string, opts transport.DialOptions) (transport.Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", uri, err)
	}

	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}

	return &Session{conn: conn, opts: opts}, nil
}

// Session wraps a gorilla client connection.
type Session struct {
	conn *websocket.Conn
	opts transport.DialOptions

	// gorilla allows one concurrent writer; control frames are exempt.
	mu        sync.Mutex
	closeSent bool
}

// Run implements transport.Session.
func (s *Session) Run(onText func(string)) error {
	defer s.conn.Close()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return s.readErr(err)
		}

		if messageType != websocket.TextMessage {
			s.opts.Logger.Debug().Int("length", len(data)).Msg("dropping non-text message")
			continue
		}
		onText(string(data))
	}
}

func (s *Session) readErr(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return transport.PeerClosed(closeErr.Code, closeErr.Text)
	}

	s.mu.Lock()
	closing := s.closeSent
	s.mu.Unlock()

	if closing && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
		return nil
	}
	return fmt.Errorf("failed to read message: %w", err)
}

// WriteText implements transport.Session.
func (s *Session) WriteText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeSent {
		return transport.ErrCloseSent
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer s.conn.SetWriteDeadline(time.Time{})
	}

	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close implements transport.Session.
func (s *Session) Close(reason string) error {
	wait := s.opts.CloseWait()

	s.mu.Lock()
	if s.closeSent {
		s.mu.Unlock()
		return nil
	}
	s.closeSent = true
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait)); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to send close frame: %w", err)
	}

	return s.conn.SetReadDeadline(time.Now().Add(wait))
}

// Abort implements transport.Session.
func (s *Session) Abort() error {
	return s.conn.Close()
}

// RemoteAddr implements transport.Session.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}
