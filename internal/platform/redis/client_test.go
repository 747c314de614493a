package redis

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credreg/internal/platform/config"
)

type fixedStats redis.PoolStats

func (f fixedStats) PoolStats() *redis.PoolStats {
	s := redis.PoolStats(f)
	return &s
}

func TestPoolCollectorReportsStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(newPoolCollector(fixedStats{Hits: 9, Misses: 2, TotalConns: 4, IdleConns: 3})))

	expected := `
# HELP credreg_redis_pool_hits_total Connections found idle in the pool
# TYPE credreg_redis_pool_hits_total counter
credreg_redis_pool_hits_total 9
# HELP credreg_redis_pool_idle_conns Idle connections currently held by the pool
# TYPE credreg_redis_pool_idle_conns gauge
credreg_redis_pool_idle_conns 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"credreg_redis_pool_hits_total", "credreg_redis_pool_idle_conns"))
}

func TestApplyOverrides(t *testing.T) {
	opts, err := redis.ParseURL("redis://localhost:6379/2?pool_size=50&dial_timeout=1s")
	require.NoError(t, err)

	applyOverrides(opts, config.RedisConfig{PoolSize: 8, ReadTimeout: 2 * time.Second})

	assert.Equal(t, 8, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
	assert.Equal(t, 2, opts.DB)
}
