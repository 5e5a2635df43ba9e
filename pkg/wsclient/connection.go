package wsclient

import (
	"sync"

	"github.com/google/uuid"

	"github.com/omochice/syncws/internal/notify"
	"github.com/omochice/syncws/internal/runner"
	"github.com/omochice/syncws/internal/transport"
)

// connection is one attempt to talk to a server, from Connect until its
// network loop stops.
type connection struct {
	id      string
	uri     string
	changed *notify.Signal
	runner  *runner.Runner

	mu      sync.Mutex
	state   State
	session transport.Session
	dialErr error
}

func newConnection(uri string) *connection {
	return &connection{
		id:      uuid.NewString(),
		uri:     uri,
		changed: notify.New(),
		state:   StateConnecting,
	}
}

// State returns the current state.
func (c *connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Changed returns a channel closed on the next state transition.
func (c *connection) Changed() <-chan struct{} {
	return c.changed.Wait()
}

// Session returns the transport session, nil until the connection opened.
func (c *connection) Session() transport.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// DialErr returns why the opening handshake failed, if it did.
func (c *connection) DialErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialErr
}

// transition moves to a later state. Moves backwards or in place are refused.
func (c *connection) transition(to State) bool {
	c.mu.Lock()
	if to <= c.state {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()

	c.changed.Broadcast()
	return true
}

func (c *connection) open(session transport.Session) bool {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return c.transition(StateOpen)
}

func (c *connection) fail(err error) {
	c.mu.Lock()
	c.dialErr = err
	c.mu.Unlock()
	c.transition(StateClosed)
}
