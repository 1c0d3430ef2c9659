package realtime

// State is the lifecycle position of a mediator
type State int32

const (
	StateNew State = iota
	StateIdle
	StateUpstreamConnecting
	StateConfigured
	StateReady
	StateAwaitingResponse
	StateReconfiguring
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateIdle:
		return "idle"
	case StateUpstreamConnecting:
		return "upstream_connecting"
	case StateConfigured:
		return "configured"
	case StateReady:
		return "ready"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateReconfiguring:
		return "reconfiguring"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// busy reports whether client commands must wait for a fence
func (s State) busy() bool {
	switch s {
	case StateUpstreamConnecting, StateConfigured, StateAwaitingResponse, StateReconfiguring:
		return true
	}
	return false
}
