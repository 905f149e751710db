package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rickgao/chatlink/internal/connection"
	"github.com/rickgao/chatlink/internal/logging"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  url: wss://chat.example.com/ws
transport:
  driver: coder
  ping_interval: 10s
retry:
  interval: 2s
  max_retries: 3
log:
  level: debug
  format: json
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.URL != "wss://chat.example.com/ws" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "wss://chat.example.com/ws")
	}
	if cfg.Transport.Driver != "coder" {
		t.Errorf("Transport.Driver = %q, want %q", cfg.Transport.Driver, "coder")
	}
	if cfg.Transport.PingInterval != 10*time.Second {
		t.Errorf("Transport.PingInterval = %v, want 10s", cfg.Transport.PingInterval)
	}
	if cfg.Retry.Interval == nil || *cfg.Retry.Interval != 2*time.Second {
		t.Errorf("Retry.Interval = %v, want 2s", cfg.Retry.Interval)
	}
	if cfg.Retry.MaxRetries == nil || *cfg.Retry.MaxRetries != 3 {
		t.Errorf("Retry.MaxRetries = %v, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_CHAT_TOKEN", "secret123")
	t.Setenv("TEST_CHAT_HOST", "chat.internal:9000")

	yaml := `
server:
  url: ws://${TEST_CHAT_HOST}/ws
transport:
  headers:
    Authorization: Bearer ${TEST_CHAT_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.URL != "ws://chat.internal:9000/ws" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "ws://chat.internal:9000/ws")
	}
	if got := cfg.Transport.Headers["Authorization"]; got != "Bearer secret123" {
		t.Errorf("Authorization header = %q, want %q", got, "Bearer secret123")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "server: [unterminated")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
server:
  url: ws://localhost:8090/ws
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Transport.Driver != DefaultDriver {
		t.Errorf("Transport.Driver = %q, want default %q", cfg.Transport.Driver, DefaultDriver)
	}
	if cfg.Transport.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("Transport.HandshakeTimeout = %v, want default %v", cfg.Transport.HandshakeTimeout, DefaultHandshakeTimeout)
	}
	if *cfg.Retry.Interval != DefaultRetryInterval {
		t.Errorf("Retry.Interval = %v, want default %v", *cfg.Retry.Interval, DefaultRetryInterval)
	}
	if *cfg.Retry.MaxRetries != DefaultMaxRetries {
		t.Errorf("Retry.MaxRetries = %d, want default %d", *cfg.Retry.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Relay.Addr != DefaultRelayAddr {
		t.Errorf("Relay.Addr = %q, want default %q", cfg.Relay.Addr, DefaultRelayAddr)
	}
}

func TestLoadWithDefaultsKeepsExplicitZeroRetry(t *testing.T) {
	yaml := `
server:
  url: ws://localhost:8090/ws
retry:
  interval: 0s
  max_retries: 0
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	p := cfg.RetryPolicy()
	if p.Interval != 0 {
		t.Errorf("Interval = %v, want 0", p.Interval)
	}
	if p.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", p.MaxRetries)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "transport:\n  driver: nhooyr\n")
	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	want := `validate config: transport.driver must be gorilla or coder, got "nhooyr"`
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}

	path = writeTempFile(t, "server:\n  url: ws://localhost:8090/ws\n")
	if _, err := LoadAndValidate(path); err != nil {
		t.Errorf("LoadAndValidate unexpected error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	neg := -1
	negDur := -time.Second

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "defaults without server url",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "bad server scheme",
			mutate:  func(c *Config) { c.Server.URL = "ftp://example.com" },
			wantErr: `server.url: unsupported scheme "ftp"`,
		},
		{
			name:    "server url without host",
			mutate:  func(c *Config) { c.Server.URL = "ws:///ws" },
			wantErr: "server.url: missing host",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Transport.Driver = "netconn" },
			wantErr: `transport.driver must be gorilla or coder, got "netconn"`,
		},
		{
			name: "ping timeout shorter than interval",
			mutate: func(c *Config) {
				c.Transport.PingInterval = 30 * time.Second
				c.Transport.PingTimeout = 10 * time.Second
			},
			wantErr: "transport.ping_timeout (10s) cannot be shorter than ping_interval (30s)",
		},
		{
			name:    "negative retry interval",
			mutate:  func(c *Config) { c.Retry.Interval = &negDur },
			wantErr: "retry.interval must be >= 0",
		},
		{
			name:    "negative max retries",
			mutate:  func(c *Config) { c.Retry.MaxRetries = &neg },
			wantErr: "retry.max_retries must be >= 0",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: `log.level must be debug, info, warn or error, got "verbose"`,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: `log.format must be text or json, got "xml"`,
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) { c.Server.URL = "https://chat.example.com/ws" },
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestValidateClient(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateClient(); err == nil || err.Error() != "server.url is required" {
		t.Errorf("ValidateClient() error = %v, want server.url is required", err)
	}

	cfg.Server.URL = "ws://localhost:8090/ws"
	if err := cfg.ValidateClient(); err != nil {
		t.Errorf("ValidateClient() unexpected error: %v", err)
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Transport.Driver = connection.DriverCoder
	cfg.Transport.Headers = map[string]string{"authorization": "Bearer t"}
	cfg.Log.Level = "WARN"
	cfg.Log.Format = "json"

	tc := cfg.ConnectionTransport()
	if tc.Driver != connection.DriverCoder {
		t.Errorf("Driver = %q, want coder", tc.Driver)
	}
	if tc.PingTimeout != DefaultPingTimeout {
		t.Errorf("PingTimeout = %v, want %v", tc.PingTimeout, DefaultPingTimeout)
	}
	if got := tc.Header.Get("Authorization"); got != "Bearer t" {
		t.Errorf("Authorization = %q, want canonicalized header", got)
	}
	if _, ok := tc.Header[http.CanonicalHeaderKey("authorization")]; !ok {
		t.Error("header key should be canonicalized")
	}

	if got := cfg.RetryPolicy(); got != connection.DefaultRetryPolicy() {
		t.Errorf("RetryPolicy() = %+v, want defaults", got)
	}

	lc := cfg.Logging()
	if lc.Format != logging.FormatJSON {
		t.Errorf("Format = %q, want json", lc.Format)
	}
	if lc.Level != logging.ParseLevel("warn") {
		t.Errorf("Level = %v, want warn", lc.Level)
	}

	if Default().ConnectionTransport().Header != nil {
		t.Error("no headers configured should yield nil header")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
