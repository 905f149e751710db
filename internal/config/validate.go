package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all values are valid. server.url is optional here;
// ValidateClient requires it.
func (c *Config) Validate() error {
	if c.Server.URL != "" {
		if err := validateURL(c.Server.URL); err != nil {
			return fmt.Errorf("server.url: %w", err)
		}
	}

	switch c.Transport.Driver {
	case "gorilla", "coder":
	default:
		return fmt.Errorf("transport.driver must be gorilla or coder, got %q", c.Transport.Driver)
	}
	if c.Transport.HandshakeTimeout < 0 {
		return errors.New("transport.handshake_timeout must be >= 0")
	}
	if c.Transport.WriteTimeout < 0 {
		return errors.New("transport.write_timeout must be >= 0")
	}
	if c.Transport.PingInterval < 0 {
		return errors.New("transport.ping_interval must be >= 0")
	}
	if c.Transport.PingInterval > 0 && c.Transport.PingTimeout > 0 && c.Transport.PingTimeout < c.Transport.PingInterval {
		return fmt.Errorf("transport.ping_timeout (%s) cannot be shorter than ping_interval (%s)",
			c.Transport.PingTimeout, c.Transport.PingInterval)
	}

	if c.Retry.Interval != nil && *c.Retry.Interval < 0 {
		return errors.New("retry.interval must be >= 0")
	}
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must be >= 0")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Relay.Addr == "" {
		return errors.New("relay.addr is required")
	}

	return nil
}

// ValidateClient runs Validate and requires server.url.
func (c *Config) ValidateClient() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	return c.Validate()
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
