package wsclient

import "sync"

// Handle shares one Client between several owners. The connection is closed
// when the last owner releases it.
type Handle struct {
	client *Client

	mu   sync.Mutex
	refs int
}

// NewHandle wraps c with a single reference held by the caller.
func NewHandle(c *Client) *Handle {
	return &Handle{client: c, refs: 1}
}

// Client returns the shared client.
func (h *Handle) Client() *Client {
	return h.client
}

// Retain adds a reference.
func (h *Handle) Retain() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		return ErrHandleReleased
	}
	h.refs++
	return nil
}

// Release drops a reference. Dropping the last one closes the connection if
// it is still live.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.refs == 0 {
		h.mu.Unlock()
		return ErrHandleReleased
	}
	h.refs--
	last := h.refs == 0
	h.mu.Unlock()

	if last && h.client.IsConnected() {
		return h.client.Close()
	}
	return nil
}
