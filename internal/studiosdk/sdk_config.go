package studiosdk

import (
	"time"
)

const (
	DefaultTimeout = 60 * time.Second
	DefaultRetries = 2
)

// Config describes how to reach one studio instance.
type Config struct {
	BaseURL string        // BaseURL is required
	APIKey  string        // APIKey is required
	Timeout time.Duration // Timeout is optional
	Retries int           // Retries is optional
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
