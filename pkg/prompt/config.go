package prompt

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables recognized by the prompt-service client.
const (
	EnvHost   = "PROMPT_HOST"
	EnvPort   = "PROMPT_PORT"
	EnvAPIKey = "PLATFORM_SERVICE_API_KEY"
)

// Config holds connection settings for the prompt service.
type Config struct {
	// Host is the service base URL, e.g. "http://prompt-service".
	Host string

	// Port is appended to Host. Zero means Host already carries the port.
	Port int

	// APIKey is sent as a bearer token on authenticated calls. The prompt
	// service shares the platform service key.
	APIKey string

	// Timeout for individual HTTP calls (default: 600s; prompt runs are
	// slow by nature).
	Timeout time.Duration
}

// ConfigFromEnv builds a Config from the environment.
func ConfigFromEnv() Config {
	cfg := Config{
		Host:   os.Getenv(EnvHost),
		APIKey: os.Getenv(EnvAPIKey),
	}
	if port, err := strconv.Atoi(os.Getenv(EnvPort)); err == nil {
		cfg.Port = port
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 600 * time.Second
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("prompt service host is required (set %s)", EnvHost)
	}
	return nil
}

// BaseURL joins host and port, tolerating a trailing slash on the host.
func (c *Config) BaseURL() string {
	host := strings.TrimSuffix(c.Host, "/")
	if c.Port > 0 {
		return fmt.Sprintf("%s:%d", host, c.Port)
	}
	return host
}
