package catalogapi

import (
	"fmt"
	"net/url"
	"time"
)

// Config represents the configuration for the catalog API client
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com/api
	BaseURL string

	// ServiceToken is sent as a bearer token on every request
	ServiceToken string

	// Timeout bounds a single request, including multipart uploads
	Timeout time.Duration
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base url %q is not absolute", ErrInvalidConfig, c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}
