package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Bridge.BaseURL)
	if err != nil {
		return fmt.Errorf("bridge.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("bridge.base_url must be http(s), got %q", c.Bridge.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("bridge.base_url has no host: %q", c.Bridge.BaseURL)
	}
	if strings.HasSuffix(u.Path, "/") && u.Path != "/" {
		return fmt.Errorf("bridge.base_url must not end with a slash: %q", c.Bridge.BaseURL)
	}

	if c.Bridge.FetchTimeout <= 0 {
		return fmt.Errorf("bridge.fetch_timeout must be > 0 (got %v)", c.Bridge.FetchTimeout)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate_limit.rate must be > 0 (got %d)", c.RateLimit.Rate)
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.window must be > 0 (got %v)", c.RateLimit.Window)
		}
	}

	return nil
}
