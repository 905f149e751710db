package config

import "time"

// Config is the root configuration shared by the chatlink and relay binaries.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Retry     RetryConfig     `yaml:"retry"`
	Log       LogConfig       `yaml:"log"`
	Relay     RelayConfig     `yaml:"relay"`
}

// ServerConfig identifies the chat server.
type ServerConfig struct {
	URL string `yaml:"url"` // ws://, wss://, http:// or https://
}

// TransportConfig holds WebSocket transport settings.
type TransportConfig struct {
	Driver           string            `yaml:"driver"` // gorilla or coder
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration     `yaml:"write_timeout"`
	PingInterval     time.Duration     `yaml:"ping_interval"`
	PingTimeout      time.Duration     `yaml:"ping_timeout"`
	Headers          map[string]string `yaml:"headers"`
}

// RetryConfig holds the reconnection policy. Both fields are pointers so an
// explicit zero ("never retry", "retry immediately") survives defaulting.
type RetryConfig struct {
	Interval   *time.Duration `yaml:"interval"`
	MaxRetries *int           `yaml:"max_retries"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// RelayConfig holds local relay server settings.
type RelayConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}
