package controlplane

import "time"

const (
	DefaultRateLimit       = 20
	DefaultRateLimitPeriod = time.Second
)

// CPServerConfig contains configuration for the control plane server.
type CPServerConfig struct {
	Addr            string        // Address to bind the control plane server
	AuthToken       string        // Bearer token for the control plane server; empty disables auth
	RateLimit       int64         // Requests allowed per client per RateLimitPeriod
	RateLimitPeriod time.Duration // Window for RateLimit
}

// WithDefaults returns a copy with the rate limit filled in.
func (c CPServerConfig) WithDefaults() CPServerConfig {
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateLimitPeriod <= 0 {
		c.RateLimitPeriod = DefaultRateLimitPeriod
	}
	return c
}
