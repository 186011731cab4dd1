package state

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/teller/internal/atm"
	apperrors "github.com/Proton-105/teller/internal/errors"
)

var errStorageFailure = errors.New("storage error")

var pin1234 = []atm.Key{atm.KeyOne, atm.KeyTwo, atm.KeyThree, atm.KeyFour}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetState(ctx context.Context, terminalID string) (*TerminalState, error) {
	args := m.Called(ctx, terminalID)
	state, _ := args.Get(0).(*TerminalState)
	return state, args.Error(1)
}

func (m *mockStorage) SetState(ctx context.Context, terminalID string, state *TerminalState) error {
	args := m.Called(ctx, terminalID, state)
	return args.Error(0)
}

func (m *mockStorage) ClearState(ctx context.Context, terminalID string) error {
	args := m.Called(ctx, terminalID)
	return args.Error(0)
}

func (m *mockStorage) GetAllStates(ctx context.Context) ([]*TerminalState, error) {
	args := m.Called(ctx)
	states, _ := args.Get(0).([]*TerminalState)
	return states, args.Error(1)
}

type mockVault struct {
	mock.Mock
}

func (m *mockVault) GetCash(ctx context.Context, terminalID string) (uint64, error) {
	args := m.Called(ctx, terminalID)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockVault) SetCash(ctx context.Context, terminalID string, cash uint64) error {
	args := m.Called(ctx, terminalID, cash)
	return args.Error(0)
}

func (m *mockVault) RecordWithdrawal(ctx context.Context, terminalID string, amount, remaining uint64) error {
	args := m.Called(ctx, terminalID, amount, remaining)
	return args.Error(0)
}

func TestController_Apply(t *testing.T) {
	ctx := context.Background()
	terminalID := "atm-42"
	log := testLogger()

	testCases := []struct {
		name        string
		setupMocks  func(ms *mockStorage)
		action      atm.Action
		expectedErr error
		expectFrom  atm.PhaseKind
		expectTo    atm.PhaseKind
		expectWhy   atm.Reason
	}{
		{
			name: "new terminal accepts card",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, terminalID).
					Return((*TerminalState)(nil), ErrStateNotFound).Once()
				ms.On("SetState", mock.Anything, terminalID, mock.MatchedBy(func(state *TerminalState) bool {
					return state.Snapshot.Phase == atm.Authenticating(99) && state.Snapshot.Cash == 100
				})).Return(nil).Once()
			},
			action:     atm.SwipeCard(99),
			expectFrom: atm.PhaseWaiting,
			expectTo:   atm.PhaseAuthenticating,
			expectWhy:  atm.ReasonCardAccepted,
		},
		{
			name: "correct pin authenticates",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, terminalID).
					Return(&TerminalState{TerminalID: terminalID, Snapshot: atm.Snapshot{
						Cash: 10, Phase: atm.Authenticating(atm.HashKeys(pin1234)), Keystrokes: pin1234,
					}}, nil).Once()
				ms.On("SetState", mock.Anything, terminalID, mock.MatchedBy(func(state *TerminalState) bool {
					return state.Snapshot.Equal(atm.Snapshot{Cash: 10, Phase: atm.Authenticated()})
				})).Return(nil).Once()
			},
			action:     atm.PressKey(atm.KeyEnter),
			expectFrom: atm.PhaseAuthenticating,
			expectTo:   atm.PhaseAuthenticated,
			expectWhy:  atm.ReasonPINAccepted,
		},
		{
			name: "storage read failure",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, terminalID).
					Return((*TerminalState)(nil), errStorageFailure).Once()
			},
			action:      atm.PressKey(atm.KeyOne),
			expectedErr: errStorageFailure,
		},
		{
			name: "storage write failure",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, terminalID).
					Return(&TerminalState{TerminalID: terminalID, Snapshot: atm.Snapshot{Cash: 10, Phase: atm.Authenticated()}}, nil).Once()
				ms.On("SetState", mock.Anything, terminalID, mock.Anything).
					Return(errStorageFailure).Once()
			},
			action:      atm.PressKey(atm.KeyTwo),
			expectedErr: errStorageFailure,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ms := &mockStorage{}
			tc.setupMocks(ms)

			controller := NewController(ms, log, nil, Options{InitialCash: 100})
			transition, err := controller.Apply(ctx, terminalID, tc.action)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.Nil(t, transition)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expectFrom, transition.From)
				assert.Equal(t, tc.expectTo, transition.To)
				assert.Equal(t, tc.expectWhy, transition.Outcome.Reason)
			}

			ms.AssertExpectations(t)
		})
	}
}

func TestController_ApplyRecordsTransition(t *testing.T) {
	var recorded []Transition
	RegisterTransitionRecorder(func(tr Transition) { recorded = append(recorded, tr) })
	t.Cleanup(func() { RegisterTransitionRecorder(nil) })

	controller := NewController(newInMemoryStorage(0), testLogger(), nil, Options{InitialCash: 5})
	_, err := controller.Apply(context.Background(), "t1", atm.PressKey(atm.KeyOne))
	require.NoError(t, err)

	require.Len(t, recorded, 1)
	assert.Equal(t, "t1", recorded[0].TerminalID)
	assert.Equal(t, atm.ReasonKeyIgnored, recorded[0].Outcome.Reason)
}

func TestController_EndToEndWithdrawal(t *testing.T) {
	ctx := context.Background()
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	vault := &mockVault{}
	vault.On("GetCash", mock.Anything, "atm-1").Return(uint64(0), ErrTerminalNotFound).Once()
	vault.On("SetCash", mock.Anything, "atm-1", uint64(10)).Return(nil).Once()
	vault.On("RecordWithdrawal", mock.Anything, "atm-1", uint64(1), uint64(9)).Return(nil).Once()

	storage := NewRedisStorage(client, testLogger(), 0)
	controller := NewController(storage, testLogger(), client, Options{InitialCash: 10, Vault: vault})

	actions := []atm.Action{
		atm.SwipeCard(atm.HashKeys(pin1234)),
		atm.PressKey(atm.KeyOne), atm.PressKey(atm.KeyTwo), atm.PressKey(atm.KeyThree), atm.PressKey(atm.KeyFour),
		atm.PressKey(atm.KeyEnter),
		atm.PressKey(atm.KeyOne),
		atm.PressKey(atm.KeyEnter),
	}

	var last *Transition
	for _, action := range actions {
		var err error
		last, err = controller.Apply(ctx, "atm-1", action)
		require.NoError(t, err, "action %s", action)
	}

	assert.Equal(t, atm.ReasonCashDispensed, last.Outcome.Reason)
	assert.Equal(t, uint64(1), last.Dispensed())
	assert.True(t, last.Snapshot.Equal(atm.Snapshot{Cash: 9, Phase: atm.Waiting()}))

	stored, err := controller.GetState(ctx, "atm-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), stored.Snapshot.Cash)
	assert.Equal(t, atm.PhaseWaiting, stored.Snapshot.Phase.Kind)

	vault.AssertExpectations(t)
}

func TestController_VaultFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	storage := newInMemoryStorage(0)
	require.NoError(t, storage.SetState(ctx, "atm-2", &TerminalState{Snapshot: atm.Snapshot{
		Cash: 10, Phase: atm.Authenticated(), Keystrokes: []atm.Key{atm.KeyThree},
	}}))

	vault := &mockVault{}
	vault.On("RecordWithdrawal", mock.Anything, "atm-2", uint64(3), uint64(7)).Return(errors.New("db down")).Once()

	controller := NewController(storage, testLogger(), nil, Options{Vault: vault})
	_, err := controller.Apply(ctx, "atm-2", atm.PressKey(atm.KeyEnter))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "E300", appErr.Code)

	stored, err := storage.GetState(ctx, "atm-2")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), stored.Snapshot.Cash)
	assert.Equal(t, atm.PhaseAuthenticated, stored.Snapshot.Phase.Kind)
	vault.AssertExpectations(t)
}

func TestController_RestockAndReset(t *testing.T) {
	ctx := context.Background()
	storage := newInMemoryStorage(0)
	require.NoError(t, storage.SetState(ctx, "atm-3", &TerminalState{Snapshot: atm.Snapshot{
		Cash: 2, Phase: atm.Authenticating(7), Keystrokes: []atm.Key{atm.KeyOne},
	}}))

	vault := &mockVault{}
	vault.On("SetCash", mock.Anything, "atm-3", uint64(500)).Return(nil).Once()

	controller := NewController(storage, testLogger(), nil, Options{Vault: vault})

	restocked, err := controller.Restock(ctx, "atm-3", 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), restocked.Snapshot.Cash)
	assert.Equal(t, atm.Authenticating(7), restocked.Snapshot.Phase)

	reset, err := controller.Reset(ctx, "atm-3")
	require.NoError(t, err)
	assert.True(t, reset.Snapshot.Equal(atm.NewSnapshot(500)))
	vault.AssertExpectations(t)
}

func TestController_RestockRejectsCashBeyondVaultRange(t *testing.T) {
	ctx := context.Background()
	storage := newInMemoryStorage(0)
	require.NoError(t, storage.SetState(ctx, "atm-6", &TerminalState{Snapshot: atm.NewSnapshot(20)}))

	vault := &mockVault{}
	controller := NewController(storage, testLogger(), nil, Options{Vault: vault})

	for i := 0; i < 10; i++ {
		_, err := controller.Restock(ctx, "atm-6", MaxCash+1)

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "E100", appErr.Code)
	}

	assert.Equal(t, apperrors.StateClosed, controller.(*machine).breaker.State())
	vault.AssertNotCalled(t, "SetCash", mock.Anything, mock.Anything, mock.Anything)

	stored, err := storage.GetState(ctx, "atm-6")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), stored.Snapshot.Cash)
}

func TestController_Reconcile(t *testing.T) {
	ctx := context.Background()
	storage := newInMemoryStorage(0)
	require.NoError(t, storage.SetState(ctx, "atm-4", &TerminalState{Snapshot: atm.Snapshot{
		Cash: 50, Phase: atm.Authenticated(), Keystrokes: []atm.Key{atm.KeyTwo},
	}}))
	require.NoError(t, storage.SetState(ctx, "atm-5", &TerminalState{Snapshot: atm.NewSnapshot(8)}))

	vault := &mockVault{}
	vault.On("GetCash", mock.Anything, "atm-4").Return(uint64(40), nil).Once()
	vault.On("GetCash", mock.Anything, "atm-5").Return(uint64(8), nil).Once()

	controller := NewController(storage, testLogger(), nil, Options{Vault: vault})

	result, err := controller.Reconcile(ctx, "atm-4")
	require.NoError(t, err)
	assert.True(t, result.Drifted())
	assert.Equal(t, uint64(50), result.SnapshotCash)

	stored, err := storage.GetState(ctx, "atm-4")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), stored.Snapshot.Cash)
	assert.Equal(t, []atm.Key{atm.KeyTwo}, stored.Snapshot.Keystrokes)

	result, err = controller.Reconcile(ctx, "atm-5")
	require.NoError(t, err)
	assert.False(t, result.Drifted())

	_, err = controller.Reconcile(ctx, "atm-missing")
	assert.ErrorIs(t, err, ErrStateNotFound)
	vault.AssertExpectations(t)

	_, err = NewController(storage, testLogger(), nil, Options{}).Reconcile(ctx, "atm-4")
	assert.ErrorIs(t, err, ErrNoVault)
}

func TestController_GetAllStatesError(t *testing.T) {
	ms := &mockStorage{}
	ms.On("GetAllStates", mock.Anything).Return(nil, errStorageFailure).Once()

	controller := NewController(ms, testLogger(), nil, Options{})
	_, err := controller.GetAllStates(context.Background())

	assert.ErrorIs(t, err, errStorageFailure)
	assert.True(t, apperrors.IsRetryable(err))
	ms.AssertExpectations(t)
}

func TestController_Lock(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := newInMemoryStorage(100 * time.Millisecond)
	controller := NewController(storage, testLogger(), client, Options{InitialCash: 10})

	ctx := context.Background()
	terminalID := "atm-77"

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := controller.Apply(ctx, terminalID, atm.SwipeCard(1))
			errCh <- err
		}()
	}

	wg.Wait()
	close(errCh)

	var success, locked int
	for err := range errCh {
		if err == nil {
			success++
			continue
		}

		if errors.Is(err, ErrStateLocked) {
			assert.True(t, apperrors.IsRetryable(err))
			locked++
			continue
		}

		t.Fatalf("unexpected error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected 1 successful transition, got %d", success)
	}
	if locked != 1 {
		t.Fatalf("expected 1 locked transition, got %d", locked)
	}

	// The lock is released once the winner finishes.
	_, err := controller.Apply(ctx, terminalID, atm.PressKey(atm.KeyOne))
	assert.NoError(t, err)
}

func TestController_UnlockKeepsForeignLock(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	m := NewController(newInMemoryStorage(0), testLogger(), client, Options{}).(*machine)

	token, err := m.lock(ctx, "atm-9")
	require.NoError(t, err)

	m.unlock(ctx, "atm-9", "someone-else")
	held, err := client.Get(ctx, "teller:lock:atm-9").Result()
	require.NoError(t, err)
	assert.Equal(t, token, held)

	m.unlock(ctx, "atm-9", token)
	_, err = client.Get(ctx, "teller:lock:atm-9").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}

	return client, cleanup
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type inMemoryStorage struct {
	mu     sync.Mutex
	states map[string]*TerminalState
	delay  time.Duration
}

func newInMemoryStorage(delay time.Duration) *inMemoryStorage {
	return &inMemoryStorage{
		states: make(map[string]*TerminalState),
		delay:  delay,
	}
}

func (s *inMemoryStorage) GetState(ctx context.Context, terminalID string) (*TerminalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[terminalID]
	if !ok {
		return nil, ErrStateNotFound
	}

	return cloneState(state), nil
}

func (s *inMemoryStorage) SetState(ctx context.Context, terminalID string, state *TerminalState) error {
	time.Sleep(s.delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cloneState(state)
	stored.TerminalID = terminalID
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	s.states[terminalID] = stored
	return nil
}

func (s *inMemoryStorage) ClearState(ctx context.Context, terminalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, terminalID)
	return nil
}

func (s *inMemoryStorage) GetAllStates(ctx context.Context) ([]*TerminalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*TerminalState, 0, len(s.states))
	for _, state := range s.states {
		result = append(result, cloneState(state))
	}
	return result, nil
}

func cloneState(state *TerminalState) *TerminalState {
	if state == nil {
		return nil
	}

	copyState := *state
	copyState.Snapshot.Keystrokes = slices.Clone(state.Snapshot.Keystrokes)
	return &copyState
}
