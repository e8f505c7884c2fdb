package client

// State is the connection lifecycle position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanSend reports whether events may be written in this state.
func (s State) CanSend() bool {
	return s == StateConnected || s == StateDisconnecting
}
