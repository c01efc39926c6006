package session

// ConnectionState tracks a session through its lifecycle. Transitions only
// move forward except Ready<->Degraded, which flip with the health of the
// direct channel and the engine.
type ConnectionState int

const (
	StateUninitialized ConnectionState = iota
	StateInitializing
	StateReady
	StateDegraded
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
