package lifecycle

// State represents the lifecycle state of an engine.
type State int

const (
	// StateIdle is the state after construction and before Start.
	StateIdle State = iota
	StateRunning
	// StateStopping means Stop was requested and the backlog is draining.
	StateStopping
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// EventEmitter is called when the lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}
