package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/cache"
	"github.com/platformbuilds/mcp-federation-broker/internal/config"
	"github.com/platformbuilds/mcp-federation-broker/internal/engine/sqliteengine"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

func TestBuildCacheDefaultsToMemoryWhenRedisAddrEmpty(t *testing.T) {
	c, err := buildCache(config.RegistryConfig{CacheEnabled: true, RedisAddr: ""}, logger.Noop())
	require.NoError(t, err)
	_, ok := c.(*cache.Memory)
	require.True(t, ok, "CacheEnabled alone (no redisAddr) must still select the memory backend")
}

func TestBuildCacheUsesMemoryWhenCacheDisabledEvenWithRedisAddr(t *testing.T) {
	c, err := buildCache(config.RegistryConfig{CacheEnabled: false, RedisAddr: "redis.internal:6379"}, logger.Noop())
	require.NoError(t, err)
	_, ok := c.(*cache.Memory)
	require.True(t, ok)
}

func TestBuildCachePropagatesRedisDialFailureAsConfigError(t *testing.T) {
	_, err := buildCache(config.RegistryConfig{
		CacheEnabled: true,
		RedisAddr:    "127.0.0.1:1", // nothing listens here
	}, logger.Noop())
	require.Error(t, err, "an unreachable redisAddr must surface as an error rather than silently falling back")
	var cfgErr *brokererr.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	eng, err := sqliteengine.Open("")
	require.NoError(t, err)
	cfg := config.Defaults()
	cfg.Metrics.LogsDir = t.TempDir()
	b, err := New(cfg, eng, logger.Noop(), nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestStatsFoldsInMetricsSnapshot(t *testing.T) {
	b := newTestBroker(t)

	_, err := b.Query(context.Background(), "SELECT 1")
	_ = err // SELECT 1 has no federated references and runs directly; only the metrics recording matters here

	stats := b.Stats()
	require.GreaterOrEqual(t, stats.Metrics.PoolHits+stats.Metrics.PoolMisses, 0)
	require.Equal(t, 0, stats.PoolSize)
}

func TestForceResetServerRejectsUnknownAlias(t *testing.T) {
	b := newTestBroker(t)

	err := b.ForceResetServer("missing", false)
	require.Error(t, err)
}
