// Package gobwas implements the transport engine with github.com/gobwas/ws.
package gobwas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/syncws/internal/transport"
)

// Engine dials client sessions using gobwas/ws.
type Engine struct{}

// New creates a gobwas Engine.
func New() *Engine {
	return &Engine{}
}

// Name implements transport.Engine.
func (e *Engine) Name() string {
	return "gobwas"
}

// Dial implements transport.Engine.
func (e *Engine) Dial(ctx context.Context, uri string, opts transport.DialOptions) (transport.Session, error) {
	dialer := ws.Dialer{Timeout: opts.HandshakeTimeout}

	conn, br, _, err := dialer.Dial(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", uri, err)
	}

	// br holds frames the server sent right behind the handshake response.
	var src io.Reader = conn
	if br != nil {
		src = br
	}

	return &Session{conn: conn, src: src, opts: opts}, nil
}

// Session wraps a net.Conn speaking the client side of the protocol.
type Session struct {
	conn net.Conn
	src  io.Reader
	opts transport.DialOptions

	// mu serializes every frame written to conn: messages, pongs and close.
	mu        sync.Mutex
	closeSent bool
}

// Run implements transport.Session.
func (s *Session) Run(onText func(string)) error {
	defer s.conn.Close()

	control := wsutil.ControlFrameHandler(lockedWriter{s}, ws.StateClientSide)
	rd := &wsutil.Reader{
		Source:         s.src,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		MaxFrameSize:   s.opts.ReadLimit,
		OnIntermediate: control,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return s.readErr(err)
		}

		switch {
		case hdr.OpCode == ws.OpClose:
			return s.handleClose(hdr, rd)
		case hdr.OpCode.IsControl():
			if err := control(hdr, rd); err != nil {
				return s.readErr(err)
			}
			continue
		case hdr.OpCode != ws.OpText:
			s.opts.Logger.Debug().Int64("length", hdr.Length).Msg("dropping non-text frame")
			if err := rd.Discard(); err != nil {
				return s.readErr(err)
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(rd, s.messageLimit()))
		if err != nil {
			return s.readErr(err)
		}
		if s.opts.ReadLimit > 0 && int64(len(data)) > s.opts.ReadLimit {
			s.sendClose(ws.StatusMessageTooBig)
			return fmt.Errorf("%w: limit is %d bytes", transport.ErrMessageTooLarge, s.opts.ReadLimit)
		}
		onText(string(data))
	}
}

// messageLimit caps one message read across all of its frames, leaving one
// byte of room to detect an oversized message.
func (s *Session) messageLimit() int64 {
	if s.opts.ReadLimit <= 0 {
		return math.MaxInt64
	}
	return s.opts.ReadLimit + 1
}

func (s *Session) sendClose(code ws.StatusCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeSent {
		return
	}
	s.closeSent = true
	if err := wsutil.WriteClientMessage(s.conn, ws.OpClose, ws.NewCloseFrameBody(code, "")); err != nil {
		s.opts.Logger.Debug().Err(err).Msg("failed to send close frame")
	}
}

// handleClose answers the peer's close frame unless we started the handshake.
func (s *Session) handleClose(hdr ws.Header, rd io.Reader) error {
	p := make([]byte, hdr.Length)
	if _, err := io.ReadFull(rd, p); err != nil {
		return s.readErr(err)
	}
	code, reason := ws.ParseCloseFrameData(p)

	s.mu.Lock()
	var err error
	if !s.closeSent {
		s.closeSent = true
		var body []byte
		if len(p) > 0 {
			body = ws.NewCloseFrameBody(code, "")
		}
		err = wsutil.WriteClientMessage(s.conn, ws.OpClose, body)
	}
	s.mu.Unlock()

	if err != nil {
		s.opts.Logger.Debug().Err(err).Msg("failed to answer close frame")
	}
	return transport.PeerClosed(int(code), reason)
}

func (s *Session) readErr(err error) error {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return transport.PeerClosed(int(closed.Code), closed.Reason)
	}

	s.mu.Lock()
	closing := s.closeSent
	s.mu.Unlock()

	if closing && errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("failed to read frame: %w", err)
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

	return wsutil.WriteClientText(s.conn, []byte(text))
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
	_ = s.conn.SetWriteDeadline(time.Now().Add(wait))
	err := wsutil.WriteClientMessage(s.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, reason))
	s.mu.Unlock()

	if err != nil {
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

// lockedWriter lets the control frame handler reply on the read goroutine
// without interleaving with WriteText.
type lockedWriter struct {
	s *Session
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return w.s.conn.Write(p)
}
