package config

import (
	"net/http"

	"github.com/rickgao/chatlink/internal/connection"
	"github.com/rickgao/chatlink/internal/logging"
)

// ConnectionTransport converts the transport section for connection.NewDialer.
func (c *Config) ConnectionTransport() connection.TransportConfig {
	var header http.Header
	if len(c.Transport.Headers) > 0 {
		header = make(http.Header, len(c.Transport.Headers))
		for k, v := range c.Transport.Headers {
			header.Set(k, v)
		}
	}

	return connection.TransportConfig{
		Driver:           c.Transport.Driver,
		HandshakeTimeout: c.Transport.HandshakeTimeout,
		WriteTimeout:     c.Transport.WriteTimeout,
		PingInterval:     c.Transport.PingInterval,
		PingTimeout:      c.Transport.PingTimeout,
		Header:           header,
	}
}

// RetryPolicy converts the retry section. Missing fields fall back to
// connection.DefaultRetryPolicy.
func (c *Config) RetryPolicy() connection.RetryPolicy {
	p := connection.DefaultRetryPolicy()
	if c.Retry.Interval != nil {
		p.Interval = *c.Retry.Interval
	}
	if c.Retry.MaxRetries != nil {
		p.MaxRetries = *c.Retry.MaxRetries
	}
	return p
}

// Logging converts the log section for logging.New.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.Log.Level),
		Format: logging.ParseFormat(c.Log.Format),
	}
}
