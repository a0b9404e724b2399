// Package config loads the broker's structured configuration via
// viper, with defaults for every option named in the external
// interfaces section, and supports fsnotify-driven hot reload of a
// subset of fields.
package config

import (
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/transport"
)

// Config is the root configuration tree. Every nested struct carries
// mapstructure tags so viper.Unmarshal can populate it directly from
// YAML, and yaml tags so the same struct round-trips through
// marshalled defaults files.
type Config struct {
	DBPath    string          `mapstructure:"dbPath" yaml:"dbPath"`
	Registry  RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	Pool      PoolConfig      `mapstructure:"pool" yaml:"pool"`
	Router    RouterConfig    `mapstructure:"router" yaml:"router"`
	VTable    VTableConfig    `mapstructure:"virtualTable" yaml:"virtualTable"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	HTTPAPI   HTTPAPIConfig   `mapstructure:"httpApi" yaml:"httpApi"`
	LogLevel  string          `mapstructure:"logLevel" yaml:"logLevel"`
}

// RegistryConfig mirrors spec §6 "Registry".
type RegistryConfig struct {
	CacheEnabled    bool   `mapstructure:"cacheEnabled" yaml:"cacheEnabled"`
	CacheTTLSeconds int    `mapstructure:"cacheTTL" yaml:"cacheTTL"`
	NamespacePrefix string `mapstructure:"namespacePrefix" yaml:"namespacePrefix"`

	// RedisAddr selects the distributed ResourceCache backend (C4):
	// when CacheEnabled is true and RedisAddr is non-empty, the broker
	// dials Redis instead of using the in-memory cache. Empty keeps
	// the default single-process memory backend even if CacheEnabled
	// is set, since there is nothing to dial.
	RedisAddr     string `mapstructure:"redisAddr" yaml:"redisAddr"`
	RedisDB       int    `mapstructure:"redisDB" yaml:"redisDB"`
	RedisPassword string `mapstructure:"redisPassword" yaml:"redisPassword"`
}

// PoolConfig mirrors spec §6 "Pool".
type PoolConfig struct {
	MaxConnections        int           `mapstructure:"maxConnections" yaml:"maxConnections"`
	ConnectionTimeoutMS   int           `mapstructure:"connectionTimeout" yaml:"connectionTimeout"`
	RetryAttempts         int           `mapstructure:"retryAttempts" yaml:"retryAttempts"`
	RetryDelayMS          int           `mapstructure:"retryDelay" yaml:"retryDelay"`
	KeepAlive             bool          `mapstructure:"keepAlive" yaml:"keepAlive"`
	TransportPriority     []string      `mapstructure:"transportPriority" yaml:"transportPriority"`
	NegotiationTimeoutMS  int           `mapstructure:"negotiationTimeout" yaml:"negotiationTimeout"`
}

// RouterConfig mirrors spec §6 "Router".
type RouterConfig struct {
	QueryTimeoutMS     int    `mapstructure:"queryTimeout" yaml:"queryTimeout"`
	ParallelQueries    bool   `mapstructure:"parallelQueries" yaml:"parallelQueries"`
	MaxParallelQueries int    `mapstructure:"maxParallelQueries" yaml:"maxParallelQueries"`
	TempTablePrefix    string `mapstructure:"tempTablePrefix" yaml:"tempTablePrefix"`
}

// VTableConfig mirrors spec §6 "Virtual table".
type VTableConfig struct {
	Lazy              bool `mapstructure:"lazy" yaml:"lazy"`
	MaxRows           int  `mapstructure:"maxRows" yaml:"maxRows"`
	AutoRefresh       bool `mapstructure:"autoRefresh" yaml:"autoRefresh"`
	RefreshIntervalMS int  `mapstructure:"refreshInterval" yaml:"refreshInterval"`
}

// MetricsConfig mirrors spec §6 "Metrics".
type MetricsConfig struct {
	LogsDir         string `mapstructure:"logsDir" yaml:"logsDir"`
	FlushIntervalMS int    `mapstructure:"flushInterval" yaml:"flushInterval"`
	MaxFileSize     int64  `mapstructure:"maxFileSize" yaml:"maxFileSize"`
	RetentionDays   int    `mapstructure:"retentionDays" yaml:"retentionDays"`
}

// HTTPAPIConfig configures the optional admin/status HTTP surface.
type HTTPAPIConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
	JWTSecret string `mapstructure:"jwtSecret" yaml:"jwtSecret"`
}

// TransportPriorityTags converts the configured string list to
// transport.Tag values, falling back to transport.DefaultPriority
// when empty.
func (p PoolConfig) TransportPriorityTags() []transport.Tag {
	if len(p.TransportPriority) == 0 {
		return transport.DefaultPriority
	}
	tags := make([]transport.Tag, len(p.TransportPriority))
	for i, s := range p.TransportPriority {
		tags[i] = transport.Tag(s)
	}
	return tags
}

func (p PoolConfig) ConnectionTimeout() time.Duration {
	return time.Duration(p.ConnectionTimeoutMS) * time.Millisecond
}

func (p PoolConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMS) * time.Millisecond
}

func (p PoolConfig) NegotiationTimeout() time.Duration {
	return time.Duration(p.NegotiationTimeoutMS) * time.Millisecond
}

func (r RouterConfig) QueryTimeout() time.Duration {
	return time.Duration(r.QueryTimeoutMS) * time.Millisecond
}

func (v VTableConfig) RefreshInterval() time.Duration {
	return time.Duration(v.RefreshIntervalMS) * time.Millisecond
}

func (m MetricsConfig) FlushInterval() time.Duration {
	return time.Duration(m.FlushIntervalMS) * time.Millisecond
}
