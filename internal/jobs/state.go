package jobs

import "fmt"

// State is the lifecycle position of a job.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateStopped
	StateTimeout
)

var stateNames = [...]string{
	StatePending:   "pending",
	StateRunning:   "running",
	StateCompleted: "completed",
	StateFailed:    "failed",
	StateStopped:   "stopped",
	StateTimeout:   "timeout",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s is absorbing.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateStopped, StateTimeout:
		return true
	default:
		return false
	}
}

// validTransitions maps each state to the states it may move to. Terminal
// states have no entry.
var validTransitions = map[State]map[State]bool{
	StatePending: {
		StateRunning: true,
		StateFailed:  true,
		StateStopped: true,
		StateTimeout: true,
	},
	StateRunning: {
		StateCompleted: true,
		StateFailed:    true,
		StateStopped:   true,
		StateTimeout:   true,
	},
}

// ValidTransition reports whether moving from one state to another is allowed.
func ValidTransition(from, to State) bool {
	return validTransitions[from][to]
}
