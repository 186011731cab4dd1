package state

import (
	"time"

	"github.com/Proton-105/teller/internal/atm"
)

// TerminalState is the persisted snapshot of one simulated teller.
type TerminalState struct {
	TerminalID string       `json:"terminal_id"`
	Snapshot   atm.Snapshot `json:"snapshot"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Transition describes the effect of one action applied to a terminal.
type Transition struct {
	TerminalID string        `json:"terminal_id"`
	Action     atm.Action    `json:"-"`
	From       atm.PhaseKind `json:"from"`
	To         atm.PhaseKind `json:"to"`
	Outcome    atm.Outcome   `json:"outcome"`
	Snapshot   atm.Snapshot  `json:"snapshot"`
}

// Dispensed returns the amount of cash paid out by the transition.
func (t *Transition) Dispensed() uint64 {
	if t == nil || t.Outcome.Reason != atm.ReasonCashDispensed {
		return 0
	}
	return t.Outcome.Amount
}
