package service

// State is the lifecycle state of a supervised service.
type State string

const (
	StateStopped   State = "stopped"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateError     State = "error"
	StateUnhealthy State = "unhealthy"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateStopped, StateStarting, StateRunning, StateStopping, StateError, StateUnhealthy:
		return true
	}
	return false
}

// HasProcess reports whether a descriptor in this state owns a live PID.
// The (state, pid) pair is always updated together; pid must be set exactly
// in the states below.
func (s State) HasProcess() bool {
	switch s {
	case StateStarting, StateRunning, StateStopping, StateUnhealthy:
		return true
	}
	return false
}

func (s State) String() string { return string(s) }
