// Package inbound buffers text payloads received from the network until the
// caller consumes them.
package inbound

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/omochice/syncws/internal/notify"
)

// Queue is an unbounded FIFO of received messages.
// One goroutine pushes while another pops or clears.
type Queue struct {
	mu     sync.Mutex
	items  *queue.Queue
	pushed *notify.Signal
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{
		items:  queue.New(),
		pushed: notify.New(),
	}
}

// Push appends msg to the tail and wakes any waiter.
func (q *Queue) Push(msg string) {
	q.mu.Lock()
	q.items.Add(msg)
	q.mu.Unlock()

	q.pushed.Broadcast()
}

// Pop removes and returns the earliest message.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 {
		return "", false
	}
	return q.items.Remove().(string), true
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Clear drops every buffered message and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.items.Length()
	q.items = queue.New()
	return n
}

// Pushed returns a channel closed on the next Push.
func (q *Queue) Pushed() <-chan struct{} {
	return q.pushed.Wait()
}
