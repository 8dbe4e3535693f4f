package domain

type SessionState int

const (
	StateIdle SessionState = iota
	StateJoining
	StateActive
	StateLeaving
	StateExited
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateJoining:
		return "Joining"
	case StateActive:
		return "Active"
	case StateLeaving:
		return "Leaving"
	case StateExited:
		return "Exited"
	default:
		return "Unknown"
	}
}

type ConnectivityState int

const (
	Disconnected ConnectivityState = iota
	Connecting
	Connected
)

func (c ConnectivityState) String() string {
	switch c {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}
