package config

// Defaults returns a Config populated with every documented default
// (spec §6 and the ambient-stack AMBIENT STACK section). A gateway
// preset is exposed separately as GatewayDefaults, differing only in
// Pool.MaxConnections (open question (c): the original had two
// presets, 10 vs 50; both are valid and configurable).
func Defaults() Config {
	return Config{
		DBPath: "./mcp-broker.db",
		Registry: RegistryConfig{
			CacheEnabled:    true,
			CacheTTLSeconds: 60,
			NamespacePrefix: "mcp://",
			RedisAddr:       "",
		},
		Pool: PoolConfig{
			MaxConnections:       10,
			ConnectionTimeoutMS:  30_000,
			RetryAttempts:        2,
			RetryDelayMS:         500,
			KeepAlive:            true,
			TransportPriority:    []string{"stdio", "websocket", "tcp", "http"},
			NegotiationTimeoutMS: 30_000,
		},
		Router: RouterConfig{
			QueryTimeoutMS:     60_000,
			ParallelQueries:    true,
			MaxParallelQueries: 5,
			TempTablePrefix:    "mcp_temp_",
		},
		VTable: VTableConfig{
			Lazy:              false,
			MaxRows:           0,
			AutoRefresh:       false,
			RefreshIntervalMS: 60_000,
		},
		Metrics: MetricsConfig{
			LogsDir:         "./mcp-metrics",
			FlushIntervalMS: 30_000,
			MaxFileSize:     10 * 1024 * 1024,
			RetentionDays:   7,
		},
		HTTPAPI: HTTPAPIConfig{
			Enabled: false,
			Addr:    ":8090",
		},
		LogLevel: "info",
	}
}

// GatewayDefaults matches the broker defaults but raises
// maxConnections to 50 for gateway-fronted deployments terminating
// many short-lived client sessions against one broker.
func GatewayDefaults() Config {
	cfg := Defaults()
	cfg.Pool.MaxConnections = 50
	return cfg
}
