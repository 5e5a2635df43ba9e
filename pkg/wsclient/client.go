// Package wsclient provides a blocking WebSocket client.
//
// A Client owns at most one connection at a time. Connect, Close and Receive
// block the calling goroutine while a dedicated goroutine drives the network
// and buffers every received text message until the caller takes it.
package wsclient

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/syncws/internal/inbound"
	"github.com/omochice/syncws/internal/runner"
	"github.com/omochice/syncws/internal/transport"
)

// Options configures a Client.
type Options struct {
	// Engine names the WebSocket library doing the wire work. See Engines.
	Engine string

	// HandshakeTimeout bounds Connect.
	HandshakeTimeout time.Duration

	// CloseTimeout bounds how long Close waits for the server's close frame.
	CloseTimeout time.Duration

	// WriteTimeout bounds each Send. Zero disables the bound.
	WriteTimeout time.Duration

	// ReadLimit is the largest accepted message in bytes. Zero keeps the
	// engine default.
	ReadLimit int64

	// Logger receives connection lifecycle and transport diagnostics.
	// The zero value discards everything.
	Logger zerolog.Logger
}

// DefaultOptions returns the options used by NewDefault.
func DefaultOptions() Options {
	return Options{
		Engine:           EngineGobwas,
		HandshakeTimeout: 10 * time.Second,
		CloseTimeout:     5 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadLimit:        1 << 20,
		Logger:           zerolog.Nop(),
	}
}

// Client is a single-connection WebSocket client with blocking operations.
//
// Connect, Close and Send are serialized with each other. Receive,
// HasMessage and IsConnected may be called from any goroutine.
type Client struct {
	opts   Options
	engine transport.Engine
	logger zerolog.Logger
	inbox  *inbound.Queue

	// opMu serializes Connect, Close and Send.
	opMu sync.Mutex

	mu   sync.RWMutex
	conn *connection
}

// New creates a Client. It does not connect.
func New(opts Options) (*Client, error) {
	engine, err := newEngine(opts.Engine)
	if err != nil {
		return nil, err
	}

	return &Client{
		opts:   opts,
		engine: engine,
		logger: opts.Logger.With().Str("component", "wsclient").Str("engine", engine.Name()).Logger(),
		inbox:  inbound.New(),
	}, nil
}

// NewDefault creates a Client with DefaultOptions.
func NewDefault() *Client {
	c, err := New(DefaultOptions())
	if err != nil {
		panic(err)
	}
	return c
}

// Connect opens a connection to uri and blocks until it is open or has failed.
func (c *Client) Connect(uri string) error {
	return c.ConnectContext(context.Background(), uri)
}

// ConnectContext is Connect with a context bounding the opening handshake.
//
// It is valid before the first connection and after the previous one closed.
// Messages left over from a previous connection are discarded.
func (c *Client) ConnectContext(ctx context.Context, uri string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if prev := c.current(); prev != nil {
		if state := prev.State(); state != StateClosed {
			return &ConnectionError{URI: uri, Err: fmt.Errorf("%w (state %s)", ErrAlreadyConnected, state)}
		}
		prev.runner.Wait()
	}

	if err := validateURI(uri); err != nil {
		return &ConnectionError{URI: uri, Err: err}
	}

	if n := c.inbox.Clear(); n > 0 {
		c.logger.Debug().Int("dropped", n).Msg("discarded messages from previous connection")
	}

	conn := newConnection(uri)
	logger := c.logger.With().Str("session", conn.id).Logger()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info().Str("uri", uri).Msg("connecting")
	conn.runner = runner.Start(func() error {
		return c.run(dialCtx, conn, logger)
	})

	for {
		changed := conn.Changed()
		if conn.State() != StateConnecting {
			break
		}
		<-changed
	}

	if err := conn.DialErr(); err != nil {
		conn.runner.Wait()
		return &ConnectionError{URI: uri, Err: err}
	}
	return nil
}

// run is the network loop of one connection: it opens the session and then
// feeds every received message into the inbox until the session ends.
func (c *Client) run(ctx context.Context, conn *connection, logger zerolog.Logger) error {
	session, err := c.engine.Dial(ctx, conn.uri, transport.DialOptions{
		HandshakeTimeout: c.opts.HandshakeTimeout,
		CloseTimeout:     c.opts.CloseTimeout,
		ReadLimit:        c.opts.ReadLimit,
		Logger:           logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to open connection")
		conn.fail(err)
		return err
	}

	conn.open(session)
	logger.Info().Str("remote", session.RemoteAddr()).Msg("connection open")

	err = session.Run(c.inbox.Push)
	conn.transition(StateClosed)

	if err != nil {
		logger.Warn().Err(err).Msg("connection terminated")
		return err
	}
	logger.Info().Msg("connection closed")
	return nil
}

// Close closes the connection and waits for the network loop to stop.
// Messages not yet received are discarded.
func (c *Client) Close() error {
	return c.CloseContext(context.Background())
}

// CloseContext is Close with a context bounding the closing handshake. When
// ctx expires the connection is torn down without waiting for the server.
func (c *Client) CloseContext(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	conn := c.current()
	if conn == nil {
		return &NotConnectedError{Op: "close", State: StateDisconnected}
	}

	// Sending the close frame may itself block on a peer that stopped
	// reading, so it runs alongside the wait below.
	closeDone := make(chan error, 1)
	if conn.transition(StateClosing) {
		session := conn.Session()
		go func() {
			closeDone <- session.Close("")
		}()
	} else {
		closeDone <- nil
	}

	aborted := false
	select {
	case <-conn.runner.Done():
	case <-ctx.Done():
		c.logger.Warn().Str("session", conn.id).Err(ctx.Err()).Msg("close handshake abandoned")
		if session := conn.Session(); session != nil {
			session.Abort()
		}
		aborted = true
		conn.runner.Wait()
	}

	// After an abort the close frame write fails with the torn down socket.
	var closeErr error
	if err := <-closeDone; err != nil && !aborted {
		closeErr = &TransportError{Op: "close", Err: err}
	}

	conn.transition(StateClosed)
	if n := c.inbox.Clear(); n > 0 {
		c.logger.Debug().Str("session", conn.id).Int("dropped", n).Msg("discarded unreceived messages")
	}

	return closeErr
}

// IsConnected reports whether a connection exists and has not closed yet.
// It is true while connecting and closing too.
func (c *Client) IsConnected() bool {
	conn := c.current()
	return conn != nil && conn.State() != StateClosed
}

// State returns the state of the current connection.
func (c *Client) State() State {
	conn := c.current()
	if conn == nil {
		return StateDisconnected
	}
	return conn.State()
}

// SessionID identifies the current connection in logs. Empty before Connect.
func (c *Client) SessionID() string {
	conn := c.current()
	if conn == nil {
		return ""
	}
	return conn.id
}

// Send sends text as one text message. It does not wait for the server to
// receive it.
func (c *Client) Send(text string) error {
	return c.SendContext(context.Background(), text)
}

// SendContext is Send with a context bounding the write.
func (c *Client) SendContext(ctx context.Context, text string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	conn := c.current()
	if conn == nil {
		return &NotConnectedError{Op: "send", State: StateDisconnected}
	}
	if state := conn.State(); state != StateOpen {
		return &NotConnectedError{Op: "send", State: state}
	}

	if c.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.WriteTimeout)
		defer cancel()
	}

	if err := conn.Session().WriteText(ctx, text); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// HasMessage reports whether Receive would return without blocking on the
// network.
func (c *Client) HasMessage() bool {
	return c.inbox.Len() > 0
}

// Receive returns the earliest message not yet received. It blocks until a
// message arrives or the connection closes.
//
// Messages that arrived before the connection closed are still returned
// afterwards. ok is false once the connection is closed and every message
// has been received, or before any connection was opened.
func (c *Client) Receive() (msg string, ok bool) {
	msg, ok, _ = c.ReceiveContext(context.Background())
	return msg, ok
}

// ReceiveContext is Receive with a context. It returns ctx.Err() if ctx ends
// before a message or the closure arrives.
func (c *Client) ReceiveContext(ctx context.Context) (string, bool, error) {
	for {
		pushed := c.inbox.Pushed()

		conn := c.current()
		if conn == nil {
			return "", false, nil
		}
		changed := conn.Changed()

		// Every message is pushed before the loop reports Closed, so reading
		// the state first guarantees the Pop below sees all of them.
		closed := conn.State() == StateClosed
		if msg, ok := c.inbox.Pop(); ok {
			return msg, true, nil
		}
		if closed {
			return "", false, nil
		}

		select {
		case <-pushed:
		case <-changed:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

func (c *Client) current() *connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func validateURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURI)
	}
	return nil
}
