package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mcp-federation-broker/internal/config"
)

func TestDefaultsSatisfyValidate(t *testing.T) {
	require.NoError(t, config.Validate(config.Defaults()))
}

func TestGatewayDefaultsOnlyRaisesPoolSize(t *testing.T) {
	base := config.Defaults()
	gw := config.GatewayDefaults()
	require.Equal(t, 50, gw.Pool.MaxConnections)
	gw.Pool.MaxConnections = base.Pool.MaxConnections
	require.Equal(t, base, gw)
}

func TestValidateRejectsNonPositivePoolSize(t *testing.T) {
	cfg := config.Defaults()
	cfg.Pool.MaxConnections = 0
	err := config.Validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsNonPositiveMaxParallelQueries(t *testing.T) {
	cfg := config.Defaults()
	cfg.Router.MaxParallelQueries = -1
	err := config.Validate(cfg)
	require.Error(t, err)
}

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpfed.yaml")
	yaml := `
dbPath: /tmp/custom.db
pool:
  maxConnections: 25
logLevel: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.db", cfg.DBPath)
	require.Equal(t, 25, cfg.Pool.MaxConnections)
	require.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep their defaults.
	require.Equal(t, config.Defaults().Router.TempTablePrefix, cfg.Router.TempTablePrefix)
}

func TestDefaultsLeaveRedisAddrEmptySoMemoryBackendIsUsed(t *testing.T) {
	cfg := config.Defaults()
	require.True(t, cfg.Registry.CacheEnabled)
	require.Empty(t, cfg.Registry.RedisAddr, "default config must not dial redis even though cacheEnabled is true")
}

func TestLoadOverridesRedisFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpfed.yaml")
	yaml := `
registry:
  cacheEnabled: true
  redisAddr: "redis.internal:6379"
  redisDB: 2
  redisPassword: "secret"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis.internal:6379", cfg.Registry.RedisAddr)
	require.Equal(t, 2, cfg.Registry.RedisDB)
	require.Equal(t, "secret", cfg.Registry.RedisPassword)
}

func TestLoadReturnsConfigErrorForMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestDurationHelpersConvertMillisecondFields(t *testing.T) {
	cfg := config.Defaults()
	require.Equal(t, cfg.Pool.ConnectionTimeout().Milliseconds(), int64(cfg.Pool.ConnectionTimeoutMS))
	require.Equal(t, cfg.Router.QueryTimeout().Milliseconds(), int64(cfg.Router.QueryTimeoutMS))
	require.Equal(t, cfg.VTable.RefreshInterval().Milliseconds(), int64(cfg.VTable.RefreshIntervalMS))
}
