// Package call holds the session state machine and the public session
// API. All session mutation flows through the Manager's guarded
// transitions; collaborators observe it through the event bus.
package call

import "fmt"

// State is the call session lifecycle position. Idle is the terminal
// re-entry point of every path.
type State int

const (
	StateIdle State = iota
	StateDialing
	StateRinging
	StateConnected
	StateOnHold
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDialing:
		return "dialing"
	case StateRinging:
		return "ringing"
	case StateConnected:
		return "connected"
	case StateOnHold:
		return "on-hold"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// oneOf reports whether s is any of the given states.
func (s State) oneOf(states ...State) bool {
	for _, st := range states {
		if s == st {
			return true
		}
	}
	return false
}
