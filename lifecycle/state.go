package lifecycle

// State is a lifecycle controller state.
type State int

// Controller states.
const (
	// Idle: no load has been accepted yet.
	Idle State = iota
	// FirstRender: a load was accepted and its first render is running.
	FirstRender
	// AwaitingAck: ready was announced and the host has not acknowledged it.
	AwaitingAck
	// Settled: the load cycle finished; resizes and new loads are handled.
	Settled
	// Failed: the current load cycle stopped on a render failure.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FirstRender:
		return "first_render"
	case AwaitingAck:
		return "awaiting_ack"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
