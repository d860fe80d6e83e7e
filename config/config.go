package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/termbridge/termbridge/terminal"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBackoff        = 500 * time.Millisecond
	DefaultCallTimeout    = 10 * time.Second
	DefaultDialTimeout    = 15 * time.Second
	DefaultHealthInterval = 30 * time.Second
)

// Config is the top-level configuration tree.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Health HealthConfig `yaml:"health"`
}

// ClientConfig holds everything the resilient client needs to reach
// the terminal bridge.
type ClientConfig struct {
	// Endpoint is the bridge RPC address, e.g. "wss://bridge:7900/rpc".
	Endpoint string `yaml:"endpoint"`

	// Account is the trading account login.
	Account string `yaml:"account"`

	// PasswordEnv is the name of the environment variable holding the
	// account password. The password itself never appears in the file.
	PasswordEnv string `yaml:"password_env"`

	// Server is the broker server name the terminal should log in to.
	Server string `yaml:"server"`

	// Backoff is the fixed pause between retry attempts after a
	// transient failure.
	Backoff time.Duration `yaml:"backoff"`

	// CallTimeout bounds a single unary round trip when the caller's
	// context carries no deadline of its own.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// DialTimeout bounds the WebSocket handshake for one connect attempt.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// TLS holds optional TLS dial options for the bridge connection.
	TLS TLSConfig `yaml:"tls"`
}

// Password returns the account password resolved from the environment.
// Returns empty string if PasswordEnv is unset or the variable is missing.
func (c ClientConfig) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// Credentials assembles the terminal credentials from config and
// environment.
func (c ClientConfig) Credentials() terminal.Credentials {
	return terminal.Credentials{
		Account:  c.Account,
		Password: c.Password(),
		Server:   c.Server,
	}
}

// TLSConfig holds TLS dial options shared by the bridge connection and
// the health probe.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Client certificate fields — used for mutual TLS.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// HealthConfig configures the optional probe of the bridge's own
// Prometheus metrics endpoint.
type HealthConfig struct {
	// Endpoint is the full URL of the bridge's /metrics endpoint.
	// Empty disables the probe.
	Endpoint string `yaml:"endpoint"`

	// Interval controls how often the probe runs.
	Interval time.Duration `yaml:"interval"`

	// Auth configures how the probe authenticates to the endpoint.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options for the probe.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for the health probe.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// API key fields — used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key.
	KeyEnv string `yaml:"key_env"`

	// Bearer token fields — used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields — used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Client: ClientConfig{
			Backoff:     DefaultBackoff,
			CallTimeout: DefaultCallTimeout,
			DialTimeout: DefaultDialTimeout,
		},
		Health: HealthConfig{
			Interval: DefaultHealthInterval,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Client.Endpoint == "" {
		return fmt.Errorf("client.endpoint is required")
	}
	if !strings.HasPrefix(cfg.Client.Endpoint, "ws://") && !strings.HasPrefix(cfg.Client.Endpoint, "wss://") {
		return fmt.Errorf("client.endpoint %q must start with ws:// or wss://", cfg.Client.Endpoint)
	}
	if cfg.Client.Account == "" {
		return fmt.Errorf("client.account is required")
	}
	if cfg.Client.Backoff <= 0 {
		return fmt.Errorf("client.backoff must be positive")
	}
	if cfg.Client.CallTimeout <= 0 {
		return fmt.Errorf("client.call_timeout must be positive")
	}
	if cfg.Client.DialTimeout <= 0 {
		return fmt.Errorf("client.dial_timeout must be positive")
	}
	switch cfg.Health.Auth.Mode {
	case "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("health.auth: unknown mode %q", cfg.Health.Auth.Mode)
	}
	if cfg.Health.Endpoint != "" && cfg.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive")
	}
	return nil
}
