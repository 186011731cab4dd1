package metrics

import (
	"context"
	"io"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/teller/internal/atm"
	"github.com/Proton-105/teller/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(outcomesTotal.WithLabelValues("cash_dispensed"))
	dispensedBefore := testutil.ToFloat64(cashDispensedTotal.WithLabelValues("metrics-atm"))

	RecordTransition(state.Transition{
		TerminalID: "metrics-atm",
		From:       atm.PhaseAuthenticated,
		To:         atm.PhaseWaiting,
		Outcome:    atm.Outcome{Reason: atm.ReasonCashDispensed, Amount: 4},
		Snapshot:   atm.NewSnapshot(6),
	})

	assert.Equal(t, before+1, testutil.ToFloat64(outcomesTotal.WithLabelValues("cash_dispensed")))
	assert.Equal(t, dispensedBefore+4, testutil.ToFloat64(cashDispensedTotal.WithLabelValues("metrics-atm")))
	assert.Equal(t, float64(6), testutil.ToFloat64(cashAvailable.WithLabelValues("metrics-atm")))
}

func TestRecordTransition_NoCashForRejectedOutcome(t *testing.T) {
	dispensedBefore := testutil.ToFloat64(cashDispensedTotal.WithLabelValues("metrics-idle"))

	RecordTransition(state.Transition{
		TerminalID: "metrics-idle",
		From:       atm.PhaseAuthenticated,
		To:         atm.PhaseAuthenticated,
		Outcome:    atm.Outcome{Reason: atm.ReasonInsufficientCash, Amount: 4},
		Snapshot:   atm.NewSnapshot(2),
	})

	assert.Equal(t, dispensedBefore, testutil.ToFloat64(cashDispensedTotal.WithLabelValues("metrics-idle")))
	assert.Equal(t, float64(2), testutil.ToFloat64(cashAvailable.WithLabelValues("metrics-idle")))
}

func TestControllerFeedsRecorder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	controller := state.NewController(state.NewRedisStorage(client, testLogger(), 0), testLogger(), client, state.Options{InitialCash: 5})

	before := testutil.ToFloat64(phaseTransitionsTotal.WithLabelValues("waiting", "authenticating"))
	_, err := controller.Apply(context.Background(), "recorded", atm.SwipeCard(atm.HashKeys(nil)))
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(phaseTransitionsTotal.WithLabelValues("waiting", "authenticating")))
}

func TestStateCollector_Collect(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	storage := state.NewRedisStorage(client, testLogger(), 0)
	ctx := context.Background()
	require.NoError(t, storage.SetState(ctx, "a", &state.TerminalState{Snapshot: atm.NewSnapshot(10)}))
	require.NoError(t, storage.SetState(ctx, "b", &state.TerminalState{Snapshot: atm.Snapshot{Cash: 3, Phase: atm.Authenticated()}}))
	require.NoError(t, storage.SetState(ctx, "c", &state.TerminalState{Snapshot: atm.NewSnapshot(0)}))

	collector := NewStateCollector(state.NewController(storage, testLogger(), client, state.Options{}), testLogger(), 0)
	require.NoError(t, collector.collect(ctx))

	assert.Equal(t, float64(3), testutil.ToFloat64(activeTerminals))
	assert.Equal(t, float64(2), testutil.ToFloat64(terminalsByPhase.WithLabelValues("waiting")))
	assert.Equal(t, float64(0), testutil.ToFloat64(terminalsByPhase.WithLabelValues("authenticating")))
	assert.Equal(t, float64(1), testutil.ToFloat64(terminalsByPhase.WithLabelValues("authenticated")))
	assert.Equal(t, float64(3), testutil.ToFloat64(cashAvailable.WithLabelValues("b")))
}

func TestRecordHelpersDefaultLabels(t *testing.T) {
	before := testutil.ToFloat64(errorsTotal.WithLabelValues("unknown", "unknown"))
	RecordError("", "")
	assert.Equal(t, before+1, testutil.ToFloat64(errorsTotal.WithLabelValues("unknown", "unknown")))

	RecordRequest("", "", 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(httpRequestsTotal.WithLabelValues("unknown", "unknown")))
}
