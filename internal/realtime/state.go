package realtime

// State of the shared channel.
//
//	Uninitialized -> Connecting -> Connected <-> Reconnecting -> Disconnected
//
// Disconnected is left only by a new GetOrCreate, which restarts from
// Connecting.
type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Active reports whether a connection loop is running for this state.
func (s State) Active() bool {
	return s == StateConnecting || s == StateConnected || s == StateReconnecting
}
