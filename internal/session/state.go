package session

// State describes the lifecycle of a voice session.
type State int

const (
	// StateDisconnected means no session exists and all resources are
	// released. This is the initial state and the only state Start accepts.
	StateDisconnected State = iota

	// StateConnecting means a session is being established: the provider is
	// being dialed and devices acquired.
	StateConnecting

	// StateConnected means the session is live: audio flows in both
	// directions.
	StateConnected

	// StateError means the session ended abnormally. Resources are already
	// released, but the state is held so the failure stays visible until an
	// explicit Stop acknowledges it.
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
