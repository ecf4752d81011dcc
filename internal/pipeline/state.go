package pipeline

// State is a step of one pipeline run.
type State string

const (
	StateReceived             State = "RECEIVED"
	StateClassified           State = "CLASSIFIED"
	StateDirectReply          State = "DIRECT_REPLY"
	StateSpecialistDispatched State = "SPECIALIST_DISPATCHED"
	StateResponseReady        State = "RESPONSE_READY"
	StateMemoryRecorded       State = "MEMORY_RECORDED"
	StateDelivered            State = "DELIVERED"
	StateDone                 State = "DONE"
	StateErrored              State = "ERRORED"
)

// transitions lists the legal successors of each state. ERRORED is absorbing.
var transitions = map[State][]State{
	StateReceived:             {StateClassified, StateErrored},
	StateClassified:           {StateDirectReply, StateSpecialistDispatched, StateErrored},
	StateDirectReply:          {StateResponseReady},
	StateSpecialistDispatched: {StateResponseReady, StateErrored},
	StateResponseReady:        {StateMemoryRecorded},
	StateMemoryRecorded:       {StateDelivered},
	StateDelivered:            {StateDone},
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateErrored
}
