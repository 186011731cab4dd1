package atm

import (
	"strconv"
	"strings"
)

type handlerKey struct {
	phase  PhaseKind
	action ActionKind
}

type handler func(Snapshot, Action) (Snapshot, Outcome)

// handlers holds one entry for every (phase, action) pair.
var handlers = map[handlerKey]handler{
	{PhaseWaiting, ActionSwipeCard}:        swipeCard,
	{PhaseAuthenticating, ActionSwipeCard}: swipeCard,
	{PhaseAuthenticated, ActionSwipeCard}:  swipeCard,
	{PhaseWaiting, ActionPressKey}:         ignoreKey,
	{PhaseAuthenticating, ActionPressKey}:  enterPIN,
	{PhaseAuthenticated, ActionPressKey}:   enterAmount,
}

// swipeCard restarts authentication with the new card. The key buffer is deliberately left as is.
func swipeCard(s Snapshot, a Action) (Snapshot, Outcome) {
	s.Phase = Authenticating(a.Digest)
	return s, Outcome{Reason: ReasonCardAccepted}
}

func ignoreKey(s Snapshot, _ Action) (Snapshot, Outcome) {
	return s, Outcome{Reason: ReasonKeyIgnored}
}

func enterPIN(s Snapshot, a Action) (Snapshot, Outcome) {
	if a.Key != KeyEnter {
		return bufferKey(s, a.Key)
	}

	if HashKeys(s.Keystrokes) == s.Phase.Expected {
		return s.endSession(Authenticated()), Outcome{Reason: ReasonPINAccepted}
	}

	return s.endSession(Waiting()), Outcome{Reason: ReasonPINRejected}
}

func enterAmount(s Snapshot, a Action) (Snapshot, Outcome) {
	if a.Key != KeyEnter {
		return bufferKey(s, a.Key)
	}

	amount := parseAmount(s.Keystrokes)
	if amount > s.Cash {
		return s.endSession(Waiting()), Outcome{Reason: ReasonInsufficientCash, Amount: amount}
	}

	s.Cash -= amount
	return s.endSession(Waiting()), Outcome{Reason: ReasonCashDispensed, Amount: amount}
}

func bufferKey(s Snapshot, k Key) (Snapshot, Outcome) {
	if !k.IsDigit() {
		return s, Outcome{Reason: ReasonUnknown}
	}
	return s.withKey(k), Outcome{Reason: ReasonKeyBuffered}
}

// parseAmount reads the buffer as a base-10 number, most significant key first. Anything that does
// not parse, including an empty buffer or an overflowing one, counts as zero.
func parseAmount(keys []Key) uint64 {
	var b strings.Builder
	for _, k := range keys {
		if !k.IsDigit() {
			return 0
		}
		b.WriteString(k.String())
	}

	amount, err := strconv.ParseUint(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return amount
}
