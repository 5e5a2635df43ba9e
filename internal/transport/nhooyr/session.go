// Package nhooyr implements the transport engine with nhooyr.io/websocket.
package nhooyr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/omochice/syncws/internal/transport"
)

// Engine dials client sessions using nhooyr.io/websocket.
type Engine struct{}

// New creates a nhooyr Engine.
func New() *Engine {
	return &Engine{}
}

// Name implements transport.Engine.
func (e *Engine) Name() string {
	return "nhooyr"
}

// Dial implements transport.Engine.
func (e *Engine) Dial(ctx context.Context, uri string, opts transport.DialOptions) (transport.Session, error) {
	if opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.HandshakeTimeout)
		defer cancel()
	}

	// The library only tears connections down through its closing
	// handshake, so keep the socket to be able to drop it directly.
	var (
		mu  sync.Mutex
		raw net.Conn
	)
	dialer := &net.Dialer{}
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				c, err := dialer.DialContext(ctx, network, addr)
				if err == nil {
					mu.Lock()
					raw = c
					mu.Unlock()
				}
				return c, err
			},
		},
	}

	conn, _, err := websocket.Dial(ctx, uri, &websocket.DialOptions{HTTPClient: client})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", uri, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if raw == nil {
		conn.Close(websocket.StatusInternalError, "")
		return nil, fmt.Errorf("failed to dial %s: no underlying connection", uri)
	}

	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}

	return &Session{conn: conn, raw: raw, opts: opts}, nil
}

// Session wraps a nhooyr client connection, which is safe for concurrent
// reads, writes and close on its own.
type Session struct {
	conn *websocket.Conn
	raw  net.Conn
	opts transport.DialOptions

	closeSent atomic.Bool
	dropOnce  sync.Once
}

// Run implements transport.Session.
func (s *Session) Run(onText func(string)) error {
	defer s.drop()

	for {
		typ, data, err := s.conn.Read(context.Background())
		if err != nil {
			return s.readErr(err)
		}

		if typ != websocket.MessageText {
			s.opts.Logger.Debug().Int("length", len(data)).Msg("dropping non-text message")
			continue
		}
		onText(string(data))
	}
}

func (s *Session) readErr(err error) error {
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		if s.closeSent.Load() {
			return nil
		}
		return transport.PeerClosed(int(closeErr.Code), closeErr.Reason)
	}

	if s.closeSent.Load() {
		return nil
	}
	return fmt.Errorf("failed to read message: %w", err)
}

// WriteText implements transport.Session.
func (s *Session) WriteText(ctx context.Context, text string) error {
	if s.closeSent.Load() {
		return transport.ErrCloseSent
	}
	return s.conn.Write(ctx, websocket.MessageText, []byte(text))
}

// Close implements transport.Session. The library runs the whole closing
// handshake inside Conn.Close with its own fixed timeout, so it runs in the
// background and the socket is dropped once CloseTimeout elapses.
func (s *Session) Close(reason string) error {
	if !s.closeSent.CompareAndSwap(false, true) {
		return nil
	}

	timer := time.AfterFunc(s.opts.CloseWait(), s.drop)
	go func() {
		defer timer.Stop()
		if err := s.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
			s.opts.Logger.Debug().Err(err).Msg("close handshake ended with error")
		}
	}()
	return nil
}

// Abort implements transport.Session.
func (s *Session) Abort() error {
	s.closeSent.Store(true)
	s.drop()
	return nil
}

func (s *Session) drop() {
	s.dropOnce.Do(func() {
		s.raw.Close()
	})
}

// RemoteAddr implements transport.Session.
func (s *Session) RemoteAddr() string {
	return s.raw.RemoteAddr().String()
}
