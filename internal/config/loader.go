package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
)

// Load reads path (YAML) into a Config seeded with Defaults(),
// allowing environment variables (MCPFED_ prefixed, nested keys
// joined with "_") to override any field.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MCPFED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Defaults()
	applyDefaultsToViper(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, brokererr.NewConfigError("read config file: "+path, err)
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return Config{}, brokererr.NewConfigError("unmarshal config", err)
	}
	return out, nil
}

func applyDefaultsToViper(v *viper.Viper, cfg Config) {
	v.SetDefault("dbPath", cfg.DBPath)
	v.SetDefault("logLevel", cfg.LogLevel)
	v.SetDefault("registry.cacheEnabled", cfg.Registry.CacheEnabled)
	v.SetDefault("registry.cacheTTL", cfg.Registry.CacheTTLSeconds)
	v.SetDefault("registry.namespacePrefix", cfg.Registry.NamespacePrefix)
	v.SetDefault("registry.redisAddr", cfg.Registry.RedisAddr)
	v.SetDefault("registry.redisDB", cfg.Registry.RedisDB)
	v.SetDefault("registry.redisPassword", cfg.Registry.RedisPassword)
	v.SetDefault("pool.maxConnections", cfg.Pool.MaxConnections)
	v.SetDefault("pool.connectionTimeout", cfg.Pool.ConnectionTimeoutMS)
	v.SetDefault("pool.retryAttempts", cfg.Pool.RetryAttempts)
	v.SetDefault("pool.retryDelay", cfg.Pool.RetryDelayMS)
	v.SetDefault("pool.keepAlive", cfg.Pool.KeepAlive)
	v.SetDefault("pool.transportPriority", cfg.Pool.TransportPriority)
	v.SetDefault("pool.negotiationTimeout", cfg.Pool.NegotiationTimeoutMS)
	v.SetDefault("router.queryTimeout", cfg.Router.QueryTimeoutMS)
	v.SetDefault("router.parallelQueries", cfg.Router.ParallelQueries)
	v.SetDefault("router.maxParallelQueries", cfg.Router.MaxParallelQueries)
	v.SetDefault("router.tempTablePrefix", cfg.Router.TempTablePrefix)
	v.SetDefault("virtualTable.lazy", cfg.VTable.Lazy)
	v.SetDefault("virtualTable.maxRows", cfg.VTable.MaxRows)
	v.SetDefault("virtualTable.autoRefresh", cfg.VTable.AutoRefresh)
	v.SetDefault("virtualTable.refreshInterval", cfg.VTable.RefreshIntervalMS)
	v.SetDefault("metrics.logsDir", cfg.Metrics.LogsDir)
	v.SetDefault("metrics.flushInterval", cfg.Metrics.FlushIntervalMS)
	v.SetDefault("metrics.maxFileSize", cfg.Metrics.MaxFileSize)
	v.SetDefault("metrics.retentionDays", cfg.Metrics.RetentionDays)
	v.SetDefault("httpApi.enabled", cfg.HTTPAPI.Enabled)
	v.SetDefault("httpApi.addr", cfg.HTTPAPI.Addr)
	v.SetDefault("httpApi.jwtSecret", cfg.HTTPAPI.JWTSecret)
}

// ValidationError is returned by Validate for the first invalid field
// found.
type ValidationError = brokererr.ConfigError

// Validate checks a handful of invariant-adjacent fields that would
// otherwise fail confusingly deep inside the broker.
func Validate(cfg Config) error {
	if cfg.Pool.MaxConnections <= 0 {
		return brokererr.NewConfigError(fmt.Sprintf("pool.maxConnections must be > 0, got %d", cfg.Pool.MaxConnections), nil)
	}
	if cfg.Router.MaxParallelQueries <= 0 {
		return brokererr.NewConfigError(fmt.Sprintf("router.maxParallelQueries must be > 0, got %d", cfg.Router.MaxParallelQueries), nil)
	}
	return nil
}
