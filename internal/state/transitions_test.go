package state

import (
	"testing"

	"github.com/Proton-105/teller/internal/atm"
)

func TestIsTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name     string
		from     atm.PhaseKind
		to       atm.PhaseKind
		expected bool
	}{
		{name: "waiting to authenticating", from: atm.PhaseWaiting, to: atm.PhaseAuthenticating, expected: true},
		{name: "waiting stays waiting", from: atm.PhaseWaiting, to: atm.PhaseWaiting, expected: true},
		{name: "authenticating to authenticated", from: atm.PhaseAuthenticating, to: atm.PhaseAuthenticated, expected: true},
		{name: "authenticating back to waiting", from: atm.PhaseAuthenticating, to: atm.PhaseWaiting, expected: true},
		{name: "authenticated to waiting", from: atm.PhaseAuthenticated, to: atm.PhaseWaiting, expected: true},
		{name: "authenticated re-swiped", from: atm.PhaseAuthenticated, to: atm.PhaseAuthenticating, expected: true},
		{name: "waiting to authenticated invalid", from: atm.PhaseWaiting, to: atm.PhaseAuthenticated, expected: false},
		{name: "unknown phase invalid", from: atm.PhaseKind(9), to: atm.PhaseWaiting, expected: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if actual := IsTransitionAllowed(tc.from, tc.to); actual != tc.expected {
				t.Errorf("IsTransitionAllowed(%s -> %s) = %t, expected %t", tc.from, tc.to, actual, tc.expected)
			}
		})
	}
}
