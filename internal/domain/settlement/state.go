package settlement

import "fmt"

// State is a stage of a settlement session.
type State string

const (
	StateIdle              State = "idle"
	StateAllocating        State = "allocating"
	StatePartialConfirming State = "partial_confirming"
	StateCommitting        State = "committing"
	StateCommitted         State = "committed"
	StateCancelled         State = "cancelled"
)

// Event drives a session from one state to the next.
type Event string

const (
	EventSubmit    Event = "submit"
	EventReject    Event = "reject"
	EventPartial   Event = "partial"
	EventFull      Event = "full"
	EventConfirm   Event = "confirm"
	EventDecline   Event = "decline"
	EventCommitted Event = "committed"
)

// TransitionError is returned for an event that is not accepted in the
// current state.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q not allowed in state %q", e.Event, e.From)
}

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventSubmit: StateAllocating,
	},
	StateAllocating: {
		EventReject:  StateIdle,
		EventPartial: StatePartialConfirming,
		EventFull:    StateCommitting,
	},
	StatePartialConfirming: {
		EventConfirm: StateCommitting,
		EventDecline: StateCancelled,
	},
	StateCommitting: {
		EventCommitted: StateCommitted,
	},
}

// Transition returns the state reached from `from` on ev. Committed and
// Cancelled are terminal. Committing has no way back: once side effects
// start the only exit is Committed.
func Transition(from State, ev Event) (State, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, &TransitionError{From: from, Event: ev}
	}
	return to, nil
}

// Terminal reports whether s accepts no further events.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}
