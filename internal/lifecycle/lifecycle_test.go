package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShutdown_RunsPhasesInOrder(t *testing.T) {
	s := NewShutdown(testLogger())

	var (
		mu    sync.Mutex
		order []Phase
	)
	record := func(p Phase) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, p)
			return nil
		}
	}

	s.Register(PhaseClose, "redis", record(PhaseClose))
	s.Register(PhaseDrain, "http", record(PhaseDrain))
	s.Register(PhaseStop, "cleaner", record(PhaseStop))
	s.Register(PhaseStop, "collector", record(PhaseStop))
	s.Register(PhaseDrain, "nil", nil)

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, []Phase{PhaseDrain, PhaseStop, PhaseStop, PhaseClose}, order)
}

func TestShutdown_CollectsErrors(t *testing.T) {
	s := NewShutdown(testLogger())
	boom := errors.New("boom")

	s.Register(PhaseDrain, "http", func(context.Context) error { return boom })
	s.Register(PhaseClose, "db", func(context.Context) error { return nil })

	err := s.Execute(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "http")
}

type staticDeps struct {
	results map[string]string
	healthy bool
}

func (d staticDeps) Check(context.Context) (map[string]string, bool) {
	return d.results, d.healthy
}

func TestProbes(t *testing.T) {
	ctx := context.Background()

	probes := NewProbes(testLogger(), staticDeps{results: map[string]string{"redis": "OK"}, healthy: true})
	assert.NoError(t, probes.Liveness(ctx))
	assert.NoError(t, probes.Readiness(ctx))

	require.NoError(t, probes.Drain(ctx))
	assert.ErrorIs(t, probes.Readiness(ctx), ErrDraining)
	assert.NoError(t, probes.Liveness(ctx))

	failing := NewProbes(testLogger(), staticDeps{results: map[string]string{"redis": "OK", "vault": "connection refused"}})
	err := failing.Readiness(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault: connection refused")

	assert.NoError(t, NewProbes(nil, nil).Readiness(ctx))
}
