package atm

// Reason explains why a transition produced the snapshot it did. It never changes the transition
// itself; callers use it to pick what to display.
type Reason uint8

const (
	// ReasonUnknown is reported for actions or phases outside the protocol; the snapshot is unchanged.
	ReasonUnknown Reason = iota
	// ReasonCardAccepted: a card was swiped and PIN entry (re)started.
	ReasonCardAccepted
	// ReasonKeyIgnored: a key was pressed with no active session.
	ReasonKeyIgnored
	// ReasonKeyBuffered: a digit was added to the buffer.
	ReasonKeyBuffered
	// ReasonPINAccepted: the typed PIN matched the card.
	ReasonPINAccepted
	// ReasonPINRejected: the typed PIN did not match; the card is returned.
	ReasonPINRejected
	// ReasonCashDispensed: the requested amount was paid out.
	ReasonCashDispensed
	// ReasonInsufficientCash: the requested amount exceeded the cash on hand.
	ReasonInsufficientCash
)

var reasonNames = [...]string{
	ReasonUnknown:          "unknown",
	ReasonCardAccepted:     "card_accepted",
	ReasonKeyIgnored:       "key_ignored",
	ReasonKeyBuffered:      "key_buffered",
	ReasonPINAccepted:      "pin_accepted",
	ReasonPINRejected:      "pin_rejected",
	ReasonCashDispensed:    "cash_dispensed",
	ReasonInsufficientCash: "insufficient_cash",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return reasonNames[ReasonUnknown]
}

// Outcome is the side channel returned by Step. Amount is the parsed withdrawal request and is
// only set for ReasonCashDispensed and ReasonInsufficientCash.
type Outcome struct {
	Reason Reason `json:"reason"`
	Amount uint64 `json:"amount,omitempty"`
}

// SessionEnded reports whether the outcome returned the teller to Waiting.
func (o Outcome) SessionEnded() bool {
	switch o.Reason {
	case ReasonPINRejected, ReasonCashDispensed, ReasonInsufficientCash:
		return true
	default:
		return false
	}
}
