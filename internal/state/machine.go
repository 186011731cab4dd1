package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/teller/internal/atm"
	apperrors "github.com/Proton-105/teller/internal/errors"
)

const (
	terminalLockKeyPattern = "teller:lock:%s"
	defaultLockTTL         = 5 * time.Second

	// MaxCash is the largest amount the vault's BIGINT column can hold.
	MaxCash = uint64(math.MaxInt64)
)

var (
	// ErrInvalidTransition indicates that the teller produced a phase change outside the protocol.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStateNotFound indicates that a terminal state record does not exist.
	ErrStateNotFound = errors.New("terminal state not found")
	// ErrStateLocked indicates that a concurrent operation already holds the lock.
	ErrStateLocked = errors.New("state is locked, try again later")
	// ErrTerminalNotFound indicates that the vault has no record of a terminal.
	ErrTerminalNotFound = errors.New("terminal not registered in vault")
	// ErrNoVault is returned by operations that need a vault when none is configured.
	ErrNoVault = errors.New("no cash vault configured")
)

// releaseLockScript deletes the lock only while it still carries the caller's token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var transitionRecorder = func(Transition) {}

// RegisterTransitionRecorder allows external packages to observe applied transitions.
func RegisterTransitionRecorder(recorder func(Transition)) {
	if recorder == nil {
		transitionRecorder = func(Transition) {}
		return
	}

	transitionRecorder = recorder
}

// Controller applies teller actions to terminals, one at a time per terminal.
type Controller interface {
	GetState(ctx context.Context, terminalID string) (*TerminalState, error)
	GetAllStates(ctx context.Context) ([]*TerminalState, error)
	Apply(ctx context.Context, terminalID string, action atm.Action) (*Transition, error)
	Restock(ctx context.Context, terminalID string, cash uint64) (*TerminalState, error)
	Reset(ctx context.Context, terminalID string) (*TerminalState, error)
	Reconcile(ctx context.Context, terminalID string) (*Reconciliation, error)
}

// Reconciliation compares the cash a snapshot holds with the vault balance.
type Reconciliation struct {
	TerminalID   string
	SnapshotCash uint64
	VaultCash    uint64
}

// Drifted reports whether the snapshot disagreed with the vault.
func (r Reconciliation) Drifted() bool {
	return r.SnapshotCash != r.VaultCash
}

// Options tunes a Controller.
type Options struct {
	// InitialCash stocks terminals that neither storage nor the vault know about.
	InitialCash uint64
	// LockTTL bounds how long one request may own a terminal.
	LockTTL time.Duration
	// Vault, when set, is the durable record of cash; nil keeps cash in session storage only.
	Vault Vault
}

// machine is a concrete implementation of Controller backed by Storage and Redis locking.
type machine struct {
	storage     Storage
	log         *slog.Logger
	redisClient *redis.Client
	vault       Vault
	breaker     *apperrors.CircuitBreaker
	initialCash uint64
	lockTTL     time.Duration
}

// NewController creates a terminal controller using the provided storage backend and redis client for locking.
func NewController(storage Storage, log *slog.Logger, redisClient *redis.Client, opts Options) Controller {
	if log == nil {
		log = slog.Default()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}

	breaker := apperrors.NewCircuitBreaker(apperrors.WithStateChange(func(from, to apperrors.State) {
		log.Warn("vault circuit breaker changed state", slog.String("from", from.String()), slog.String("to", to.String()))
	}))

	return &machine{
		storage:     storage,
		log:         log,
		redisClient: redisClient,
		vault:       opts.Vault,
		breaker:     breaker,
		initialCash: opts.InitialCash,
		lockTTL:     opts.LockTTL,
	}
}

// GetState returns the stored terminal or a fresh idle one stocked from the vault.
func (m *machine) GetState(ctx context.Context, terminalID string) (*TerminalState, error) {
	return m.load(ctx, terminalID)
}

// GetAllStates returns every persisted terminal state.
func (m *machine) GetAllStates(ctx context.Context) ([]*TerminalState, error) {
	states, err := m.storage.GetAllStates(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return states, nil
}

// Apply runs one action through the teller protocol under the terminal lock and persists the result.
// Dispensed cash is journaled in the vault before the new snapshot is saved.
func (m *machine) Apply(ctx context.Context, terminalID string, action atm.Action) (*Transition, error) {
	token, err := m.lock(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	defer m.unlock(ctx, terminalID, token)

	current, err := m.load(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	next, outcome := atm.Step(current.Snapshot, action)
	from, to := current.Snapshot.Phase.Kind, next.Phase.Kind

	if !IsTransitionAllowed(from, to) {
		m.log.Error("invalid state transition", "terminal_id", terminalID, "from", from, "to", to, "action", action.String())
		return nil, ErrInvalidTransition
	}

	journaled := false
	if outcome.Reason == atm.ReasonCashDispensed && outcome.Amount > 0 && m.vault != nil {
		err := m.breaker.Call(func() error {
			return m.vault.RecordWithdrawal(ctx, terminalID, outcome.Amount, next.Cash)
		})
		if err != nil {
			m.log.Error("failed to journal withdrawal", "terminal_id", terminalID, "amount", outcome.Amount, "error", err)
			return nil, apperrors.NewVaultError(err)
		}
		journaled = true
	}

	if err := m.storage.SetState(ctx, terminalID, &TerminalState{TerminalID: terminalID, Snapshot: next}); err != nil {
		storageErr := apperrors.NewStorageError(err)
		// The vault already paid out; replaying the action would pay twice.
		storageErr.Retryable = !journaled
		return nil, storageErr
	}

	transition := Transition{
		TerminalID: terminalID,
		Action:     action,
		From:       from,
		To:         to,
		Outcome:    outcome,
		Snapshot:   next,
	}
	transitionRecorder(transition)

	m.log.Debug("teller transition",
		slog.String("terminal_id", terminalID),
		slog.String("action", action.Kind.String()),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("reason", outcome.Reason.String()),
	)

	return &transition, nil
}

// Restock sets the cash on hand of a terminal, keeping its session untouched.
func (m *machine) Restock(ctx context.Context, terminalID string, cash uint64) (*TerminalState, error) {
	if cash > MaxCash {
		return nil, apperrors.NewValidationError(fmt.Sprintf("cash must not exceed %d", MaxCash))
	}

	token, err := m.lock(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	defer m.unlock(ctx, terminalID, token)

	current, err := m.load(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	if m.vault != nil {
		if err := m.breaker.Call(func() error { return m.vault.SetCash(ctx, terminalID, cash) }); err != nil {
			return nil, apperrors.NewVaultError(err)
		}
	}

	current.Snapshot.Cash = cash
	if err := m.storage.SetState(ctx, terminalID, current); err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	m.log.Info("terminal restocked", slog.String("terminal_id", terminalID), slog.Uint64("cash", cash))
	return current, nil
}

// Reset ends any session in progress: the terminal returns to Waiting with an empty buffer.
// Like Restock and Reconcile it is an operator override and does not go through atm.Next.
func (m *machine) Reset(ctx context.Context, terminalID string) (*TerminalState, error) {
	token, err := m.lock(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	defer m.unlock(ctx, terminalID, token)

	current, err := m.load(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	from := current.Snapshot.Phase.Kind
	current.Snapshot = atm.NewSnapshot(current.Snapshot.Cash)
	if err := m.storage.SetState(ctx, terminalID, current); err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	if from != atm.PhaseWaiting {
		m.log.Info("terminal session reset", slog.String("terminal_id", terminalID), slog.String("from", from.String()))
	}
	return current, nil
}

// Reconcile overwrites the snapshot cash with the vault balance when they disagree. The vault wins
// because withdrawals are journaled there before the snapshot is saved.
func (m *machine) Reconcile(ctx context.Context, terminalID string) (*Reconciliation, error) {
	if m.vault == nil {
		return nil, ErrNoVault
	}

	token, err := m.lock(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	defer m.unlock(ctx, terminalID, token)

	current, err := m.storage.GetState(ctx, terminalID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil, err
		}
		return nil, apperrors.NewStorageError(err)
	}

	var vaultCash uint64
	err = m.breaker.Call(func() error {
		cash, err := m.vault.GetCash(ctx, terminalID)
		vaultCash = cash
		return err
	})
	if err != nil {
		return nil, apperrors.NewVaultError(err)
	}

	result := &Reconciliation{TerminalID: terminalID, SnapshotCash: current.Snapshot.Cash, VaultCash: vaultCash}
	if !result.Drifted() {
		return result, nil
	}

	current.Snapshot.Cash = vaultCash
	if err := m.storage.SetState(ctx, terminalID, current); err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	m.log.Warn("terminal cash reconciled with vault",
		slog.String("terminal_id", terminalID),
		slog.Uint64("snapshot_cash", result.SnapshotCash),
		slog.Uint64("vault_cash", vaultCash),
	)
	return result, nil
}

// load fetches the stored terminal, or builds an idle one whose cash comes from the vault or the
// configured initial amount. A fresh terminal is registered in the vault but not saved in storage.
func (m *machine) load(ctx context.Context, terminalID string) (*TerminalState, error) {
	stored, err := m.storage.GetState(ctx, terminalID)
	if err == nil && stored != nil {
		return stored, nil
	}
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return nil, apperrors.NewStorageError(err)
	}

	cash, err := m.stockCash(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	return &TerminalState{TerminalID: terminalID, Snapshot: atm.NewSnapshot(cash)}, nil
}

func (m *machine) stockCash(ctx context.Context, terminalID string) (uint64, error) {
	if m.vault == nil {
		return m.initialCash, nil
	}

	var cash uint64
	err := m.breaker.Call(func() error {
		stored, err := m.vault.GetCash(ctx, terminalID)
		if errors.Is(err, ErrTerminalNotFound) {
			cash = m.initialCash
			return m.vault.SetCash(ctx, terminalID, cash)
		}
		cash = stored
		return err
	})
	if err != nil {
		return 0, apperrors.NewVaultError(err)
	}

	return cash, nil
}

func (m *machine) lock(ctx context.Context, terminalID string) (string, error) {
	if m.redisClient == nil {
		m.log.Warn("redis client not configured for terminal locks; skipping", "terminal_id", terminalID)
		return "", nil
	}

	token := uuid.NewString()
	acquired, err := m.redisClient.SetNX(ctx, fmt.Sprintf(terminalLockKeyPattern, terminalID), token, m.lockTTL).Result()
	if err != nil {
		m.log.Error("failed to acquire terminal lock", "terminal_id", terminalID, "error", err)
		return "", apperrors.NewStorageError(err)
	}

	if !acquired {
		m.log.Warn("terminal lock already held", "terminal_id", terminalID)
		return "", apperrors.NewBusyError(terminalID, ErrStateLocked)
	}

	return token, nil
}

func (m *machine) unlock(ctx context.Context, terminalID, token string) {
	if m.redisClient == nil || token == "" {
		return
	}

	key := fmt.Sprintf(terminalLockKeyPattern, terminalID)
	if err := releaseLockScript.Run(context.WithoutCancel(ctx), m.redisClient, []string{key}, token).Err(); err != nil {
		m.log.Error("failed to release terminal lock", "terminal_id", terminalID, "error", err)
	}
}
