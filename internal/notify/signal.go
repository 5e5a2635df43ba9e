// Package notify provides a broadcast wake-up primitive that composes with select.
package notify

import "sync"

// Signal wakes every goroutine waiting on it when Broadcast is called.
//
// Waiters take the channel from Wait before checking their condition and then
// block on it, so a Broadcast that lands between the check and the block is
// never missed.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// New creates a Signal.
func New() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Wait returns a channel that is closed on the next Broadcast.
func (s *Signal) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Broadcast wakes all current waiters.
func (s *Signal) Broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.ch)
	s.ch = make(chan struct{})
}
