package stream

// State is the connection state of a Client.
type State int

const (
	// StateDisconnected is the initial state and the state after Close.
	StateDisconnected State = iota
	// StateConnecting means a connection attempt is in flight.
	StateConnecting
	// StateConnected means the stream is open and frames are being routed.
	StateConnected
	// StateReconnecting means a reconnect is scheduled after an unexpected close.
	StateReconnecting
	// StateFailed means the retry ceiling was reached; no automatic action follows.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
