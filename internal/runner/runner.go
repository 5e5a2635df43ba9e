// Package runner drives a connection's network loop on a dedicated goroutine.
package runner

// Runner owns one goroutine running a network loop until it returns.
type Runner struct {
	done chan struct{}
	err  error
}

// Start runs loop on a new goroutine.
func Start(loop func() error) *Runner {
	r := &Runner{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.err = loop()
	}()
	return r
}

// Done returns a channel closed once the loop has returned.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the loop returns and reports its error.
// It must not be called from the loop itself.
func (r *Runner) Wait() error {
	<-r.done
	return r.err
}
