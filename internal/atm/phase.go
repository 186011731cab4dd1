package atm

import "fmt"

// PhaseKind enumerates the authentication phases of a teller session.
type PhaseKind uint8

const (
	// PhaseWaiting means no session is active; the teller waits for a card.
	PhaseWaiting PhaseKind = iota
	// PhaseAuthenticating means a card was swiped and the PIN is being typed.
	PhaseAuthenticating
	// PhaseAuthenticated means the PIN matched and the withdrawal amount is being typed.
	PhaseAuthenticated
)

var phaseKindNames = [...]string{
	PhaseWaiting:        "waiting",
	PhaseAuthenticating: "authenticating",
	PhaseAuthenticated:  "authenticated",
}

func (k PhaseKind) String() string {
	if int(k) < len(phaseKindNames) {
		return phaseKindNames[k]
	}
	return fmt.Sprintf("phase(%d)", uint8(k))
}

// Phase is the authentication state of a snapshot. Expected holds the digest of the card's PIN and
// is only set while authenticating.
type Phase struct {
	Kind     PhaseKind `json:"kind"`
	Expected Digest    `json:"expected,omitempty"`
}

// Waiting returns the idle phase. It is also the zero value of Phase.
func Waiting() Phase {
	return Phase{Kind: PhaseWaiting}
}

// Authenticating returns the phase entered after swiping a card whose PIN has the given digest.
func Authenticating(expected Digest) Phase {
	return Phase{Kind: PhaseAuthenticating, Expected: expected}
}

// Authenticated returns the phase entered after a correct PIN.
func Authenticated() Phase {
	return Phase{Kind: PhaseAuthenticated}
}

func (p Phase) String() string {
	return p.Kind.String()
}
