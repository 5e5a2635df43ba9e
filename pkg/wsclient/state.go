package wsclient

// State is the lifecycle stage of a client's connection.
// States only ever advance within one connection.
type State int

const (
	// StateDisconnected means no connection has been opened yet.
	StateDisconnected State = iota
	// StateConnecting means the opening handshake is in progress.
	StateConnecting
	// StateOpen means messages can be sent and received.
	StateOpen
	// StateClosing means a close frame has been sent.
	StateClosing
	// StateClosed means the network loop has stopped.
	StateClosed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
