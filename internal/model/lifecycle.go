package model

// SlotState is the lifecycle position of a slot.
type SlotState string

const (
	SlotStateOpen      SlotState = "open"
	SlotStateBooked    SlotState = "booked"
	SlotStateCompleted SlotState = "completed"
	SlotStateCancelled SlotState = "cancelled"
)

// Transition names a lifecycle operation.
type Transition string

const (
	TransitionReserve  Transition = "reserve"
	TransitionComplete Transition = "complete"
	TransitionCancel   Transition = "cancel"
	TransitionRelease  Transition = "release"
)

// transitions lists every legal move. Completed and Cancelled are terminal and
// a booked slot can never be cancelled directly.
var transitions = map[Transition]struct {
	From SlotState
	To   SlotState
}{
	TransitionReserve:  {From: SlotStateOpen, To: SlotStateBooked},
	TransitionComplete: {From: SlotStateBooked, To: SlotStateCompleted},
	TransitionCancel:   {From: SlotStateOpen, To: SlotStateCancelled},
	TransitionRelease:  {From: SlotStateBooked, To: SlotStateOpen},
}

// CanApply reports whether t is legal from state.
func CanApply(t Transition, from SlotState) bool {
	rule, ok := transitions[t]
	return ok && rule.From == from
}

// Target returns the state reached by t.
func Target(t Transition) (SlotState, bool) {
	rule, ok := transitions[t]
	return rule.To, ok
}

// IsTerminal reports whether no transition leaves state.
func IsTerminal(state SlotState) bool {
	for _, rule := range transitions {
		if rule.From == state {
			return false
		}
	}
	return true
}
