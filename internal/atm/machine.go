package atm

import "github.com/Proton-105/teller/pkg/fsm"

// Step applies one action to s and returns the next snapshot with the reason for it. s is never
// modified. Actions or phases outside the protocol return s unchanged with ReasonUnknown.
func Step(s Snapshot, a Action) (Snapshot, Outcome) {
	h, ok := handlers[handlerKey{phase: s.Phase.Kind, action: a.Kind}]
	if !ok {
		return s, Outcome{Reason: ReasonUnknown}
	}
	return h(s, a)
}

// Next applies one action to s and returns the next snapshot.
func Next(s Snapshot, a Action) Snapshot {
	next, _ := Step(s, a)
	return next
}

// Machine exposes Next through the generic transition contract.
type Machine struct{}

var _ fsm.Transitioner[Snapshot, Action] = Machine{}

// NextState implements fsm.Transitioner.
func (Machine) NextState(s Snapshot, a Action) Snapshot {
	return Next(s, a)
}
