//go:build integration

package redis_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credreg/internal/platform/config"
	"credreg/internal/platform/redis"
	"credreg/pkg/testutil/containers"
)

func TestNewConnectsAndRecordsStats(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()

	client, err := redis.New(ctx, config.RedisConfig{URL: "redis://" + rc.Addr, PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.NoError(t, client.Health(ctx))
	reg := prometheus.NewRegistry()
	require.NoError(t, client.RegisterMetrics(reg))
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}

func TestNewWithoutURL(t *testing.T) {
	client, err := redis.New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}
