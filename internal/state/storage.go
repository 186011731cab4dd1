// Package state keeps teller snapshots per terminal and serialises the actions applied to them.
package state

import "context"

// Storage defines the persistence contract for terminal snapshots.
type Storage interface {
	// GetState returns the current state for the specified terminal.
	GetState(ctx context.Context, terminalID string) (*TerminalState, error)
	// SetState saves the provided state for the specified terminal.
	SetState(ctx context.Context, terminalID string, state *TerminalState) error
	// ClearState removes the state for the specified terminal.
	ClearState(ctx context.Context, terminalID string) error
	// GetAllStates returns every stored terminal state.
	GetAllStates(ctx context.Context) ([]*TerminalState, error)
}

// Vault is the durable record of cash held by each terminal.
type Vault interface {
	// GetCash returns the cash on hand or ErrTerminalNotFound.
	GetCash(ctx context.Context, terminalID string) (uint64, error)
	// SetCash registers or restocks a terminal.
	SetCash(ctx context.Context, terminalID string, cash uint64) error
	// RecordWithdrawal journals a dispensed amount together with the remaining cash.
	RecordWithdrawal(ctx context.Context, terminalID string, amount, remaining uint64) error
}
