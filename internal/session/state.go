package session

// State is the lifecycle state of the control-channel session.
type State int

const (
	StateUnauthenticated State = iota
	StatePairing
	StateAuthenticated
	StateDisconnected
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StatePairing:
		return "pairing"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further reconnection will be attempted.
func (s State) Terminal() bool {
	return s == StateLoggedOut
}
