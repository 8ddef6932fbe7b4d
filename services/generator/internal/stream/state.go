package stream

// State of a delivery loop. Stopped and Failed are terminal.
type State int32

const (
	StateConnecting State = iota
	StateValidating
	StateRunning
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateValidating:
		return "VALIDATING"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}
