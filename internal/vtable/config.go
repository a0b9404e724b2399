package vtable

import "time"

// Config is the per-virtual-table policy, fully enumerated per spec §4.7.
type Config struct {
	Lazy            bool
	MaxRows         int
	AutoRefresh     bool
	RefreshInterval time.Duration
}

// DefaultConfig matches the documented option defaults.
func DefaultConfig() Config {
	return Config{
		Lazy:            false,
		MaxRows:         0,
		AutoRefresh:     false,
		RefreshInterval: 60 * time.Second,
	}
}

// HasTimer reports whether this config should own a running refresh
// timer, matching invariant I3: a refresh timer exists iff
// autoRefresh && refreshInterval > 0 && !lazy.
func (c Config) HasTimer() bool {
	return c.AutoRefresh && c.RefreshInterval > 0 && !c.Lazy
}
