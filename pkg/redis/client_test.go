package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/teller/pkg/config"
)

func TestNew_InstrumentsCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := New(ctx, config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	before := testutil.ToFloat64(redisRequestsTotal.WithLabelValues("get"))
	missesBefore := testutil.ToFloat64(redisErrorsTotal.WithLabelValues("get"))

	_, err = client.Get(ctx, "missing").Result()
	assert.Error(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(redisRequestsTotal.WithLabelValues("get")))
	assert.Equal(t, missesBefore, testutil.ToFloat64(redisErrorsTotal.WithLabelValues("get")))
	assert.NoError(t, client.HealthCheck(ctx))
}

func TestNew_ConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
