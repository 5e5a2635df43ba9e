// Package peer provides a small WebSocket server that greets, records and
// optionally echoes text messages. Tests and the CLI use it as the far end of
// a client connection.
package peer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config controls what the peer does with each connection.
type Config struct {
	// Path is the route serving the upgrade. Defaults to "/".
	Path string

	// Greeting messages are sent in order as soon as a connection opens.
	Greeting []string

	// CloseAfterGreeting makes the peer start the closing handshake once the
	// greeting has been written.
	CloseAfterGreeting bool

	// Echo sends every received text message back.
	Echo bool

	// EchoRate limits echoes per second. Zero means unlimited.
	EchoRate float64

	// EchoBurst is the limiter burst size when EchoRate is set.
	EchoBurst int
}

// Hooks observe connection events. Every field is optional.
type Hooks struct {
	OnOpen    func(remoteAddr string)
	OnMessage func(text string)
	OnClose   func(code int)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// conn serializes writes to one upgraded connection.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *conn) writeClose(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	return c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Peer is a WebSocket server built on gin and gorilla/websocket.
type Peer struct {
	cfg    Config
	hooks  Hooks
	logger zerolog.Logger
	router *gin.Engine

	listener net.Listener
	server   *http.Server

	conns map[*conn]struct{}
	mu    sync.RWMutex
	wg    sync.WaitGroup
}

// New creates a Peer. Serve it with Start or mount Handler on any server.
func New(cfg Config, hooks Hooks, logger zerolog.Logger) *Peer {
	if cfg.Path == "" {
		cfg.Path = "/"
	}

	p := &Peer{
		cfg:    cfg,
		hooks:  hooks,
		logger: logger.With().Str("component", "peer").Logger(),
		conns:  make(map[*conn]struct{}),
	}

	gin.SetMode(gin.ReleaseMode)
	p.router = gin.New()
	p.router.GET(cfg.Path, p.handleWebSocket)

	return p
}

// Handler returns the HTTP handler serving the upgrade route.
func (p *Peer) Handler() http.Handler {
	return p.router
}

// Start listens on address and serves until Stop is called.
func (p *Peer) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.listener = listener
	p.server = &http.Server{Handler: p.router}
	server := p.server
	p.mu.Unlock()

	p.logger.Info().Str("addr", listener.Addr().String()).Msg("peer listening")

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down, drops open connections and waits for their
// handlers to return.
func (p *Peer) Stop() {
	p.mu.RLock()
	server := p.server
	p.mu.RUnlock()

	if server != nil {
		server.Shutdown(context.Background())
	}

	p.mu.RLock()
	for c := range p.conns {
		c.ws.Close()
	}
	p.mu.RUnlock()

	p.wg.Wait()
}

// Addr returns the listening address.
func (p *Peer) Addr() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.listener != nil {
		return p.listener.Addr().String()
	}
	return ""
}

// ConnCount returns the number of open connections.
func (p *Peer) ConnCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// Broadcast sends text to every open connection.
func (p *Peer) Broadcast(text string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for c := range p.conns {
		if err := c.writeText(text); err != nil {
			p.logger.Warn().Err(err).Msg("failed to broadcast")
		}
	}
}

// CloseAll starts the closing handshake on every open connection.
func (p *Peer) CloseAll(code int, reason string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for c := range p.conns {
		if err := c.writeClose(code, reason); err != nil {
			p.logger.Warn().Err(err).Msg("failed to send close frame")
		}
	}
}

func (p *Peer) handleWebSocket(ginCtx *gin.Context) {
	ws, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	c := &conn{ws: ws}

	p.mu.Lock()
	p.conns[c] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	defer p.wg.Done()

	p.serve(c, ginCtx.Request.RemoteAddr)
}

func (p *Peer) serve(c *conn, remoteAddr string) {
	defer func() {
		p.mu.Lock()
		delete(p.conns, c)
		p.mu.Unlock()
		c.ws.Close()
	}()

	logger := p.logger.With().Str("remote", remoteAddr).Logger()
	logger.Debug().Msg("connection opened")

	if p.hooks.OnOpen != nil {
		p.hooks.OnOpen(remoteAddr)
	}

	for _, msg := range p.cfg.Greeting {
		if err := c.writeText(msg); err != nil {
			logger.Warn().Err(err).Msg("failed to send greeting")
			return
		}
	}

	if p.cfg.CloseAfterGreeting {
		if err := c.writeClose(websocket.CloseNormalClosure, ""); err != nil {
			logger.Warn().Err(err).Msg("failed to send close frame")
			return
		}
	}

	var limiter *rate.Limiter
	if p.cfg.EchoRate > 0 {
		burst := p.cfg.EchoBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(p.cfg.EchoRate), burst)
	}

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			}
			logger.Debug().Int("code", code).Msg("connection closed")
			if p.hooks.OnClose != nil {
				p.hooks.OnClose(code)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		text := string(data)
		if p.hooks.OnMessage != nil {
			p.hooks.OnMessage(text)
		}

		if !p.cfg.Echo {
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("echo limiter failed")
				continue
			}
		}
		if err := c.writeText(text); err != nil {
			logger.Warn().Err(err).Msg("failed to echo message")
		}
	}
}
