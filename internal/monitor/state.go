package monitor

// State is the lifecycle state of a Monitor.
type State int

const (
	// StateIdle means monitoring is off and no session is held.
	StateIdle State = iota

	// StateStarting means a start is in flight (permission request or
	// session establishment pending).
	StateStarting

	// StateActive means the foreground timer is running.
	StateActive

	// StateBackgrounded means foreground sampling is suspended; cycles run
	// only inside OS-granted refresh opportunities.
	StateBackgrounded

	// StateStopping means a stop is in flight.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateBackgrounded:
		return "backgrounded"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
