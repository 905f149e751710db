package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDriver           = "gorilla"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 60 * time.Second
	DefaultRetryInterval    = 5 * time.Second
	DefaultMaxRetries       = 5
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultRelayAddr        = ":8090"
	DefaultShutdownTimeout  = 5 * time.Second
)

func (c *Config) applyDefaults() {
	// Transport defaults
	if c.Transport.Driver == "" {
		c.Transport.Driver = DefaultDriver
	}
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = DefaultPingInterval
	}
	if c.Transport.PingTimeout == 0 {
		c.Transport.PingTimeout = DefaultPingTimeout
	}

	// Retry defaults: only absent fields, explicit zeros are kept
	if c.Retry.Interval == nil {
		d := DefaultRetryInterval
		c.Retry.Interval = &d
	}
	if c.Retry.MaxRetries == nil {
		n := DefaultMaxRetries
		c.Retry.MaxRetries = &n
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Relay defaults
	if c.Relay.Addr == "" {
		c.Relay.Addr = DefaultRelayAddr
	}
	if c.Relay.ShutdownTimeout == 0 {
		c.Relay.ShutdownTimeout = DefaultShutdownTimeout
	}
}
