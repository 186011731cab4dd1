package state

import "github.com/Proton-105/teller/internal/atm"

// validTransitions lists the phase changes a single action can cause.
var validTransitions = map[atm.PhaseKind][]atm.PhaseKind{
	atm.PhaseWaiting: {
		atm.PhaseWaiting,
		atm.PhaseAuthenticating,
	},
	atm.PhaseAuthenticating: {
		atm.PhaseAuthenticating,
		atm.PhaseAuthenticated,
		atm.PhaseWaiting,
	},
	atm.PhaseAuthenticated: {
		atm.PhaseAuthenticated,
		atm.PhaseAuthenticating,
		atm.PhaseWaiting,
	},
}

// IsTransitionAllowed reports whether moving from one phase to another is valid.
func IsTransitionAllowed(from, to atm.PhaseKind) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, phase := range allowed {
		if phase == to {
			return true
		}
	}

	return false
}
