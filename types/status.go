package types

// State is the coarse health of the completion service as seen by the editor
type State int

const (
	StateInactive State = iota
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a State with a human-readable message
type Status struct {
	State   State
	Message string
}
