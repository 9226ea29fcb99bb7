package platform

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Zipstack/unstract-sdk-go/pkg/retry"
)

// Environment variables recognized by the platform client.
const (
	EnvHost   = "PLATFORM_SERVICE_HOST"
	EnvPort   = "PLATFORM_SERVICE_PORT"
	EnvAPIKey = "PLATFORM_SERVICE_API_KEY"

	EnvMaxRetries    = "PLATFORM_SERVICE_MAX_RETRIES"
	EnvInitialDelay  = "PLATFORM_SERVICE_INITIAL_DELAY"
	EnvMaxDelay      = "PLATFORM_SERVICE_MAX_DELAY"
	EnvBackoffFactor = "PLATFORM_SERVICE_BACKOFF_FACTOR"
	EnvRetryJitter   = "PLATFORM_SERVICE_RETRY_JITTER"
)

// Config holds connection settings for the platform service.
type Config struct {
	// Host is the service base URL, e.g. "http://platform-service".
	Host string

	// Port is appended to Host. Zero means Host already carries the port.
	Port int

	// APIKey is sent as a bearer token on every call.
	APIKey string

	// Timeout for individual HTTP calls (default: 30s).
	Timeout time.Duration

	// Retry is the backoff schedule for idempotent calls.
	Retry retry.Config
}

// ConfigFromEnv builds a Config from PLATFORM_SERVICE_* variables.
func ConfigFromEnv() Config {
	cfg := Config{
		Host:   os.Getenv(EnvHost),
		APIKey: os.Getenv(EnvAPIKey),
		Retry:  retryConfigFromEnv(),
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
		c.Timeout = 30 * time.Second
	}
	if c.Retry == (retry.Config{}) {
		c.Retry = retry.DefaultConfig()
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("platform service host is required (set %s)", EnvHost)
	}
	if c.APIKey == "" {
		return fmt.Errorf("platform service API key is required (set %s)", EnvAPIKey)
	}
	return nil
}

// BaseURL joins host and port, tolerating a trailing slash on the host.
func (c *Config) BaseURL() string {
	host := strings.TrimSuffix(c.Host, "/")
	if c.Port == 0 {
		return host
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

func retryConfigFromEnv() retry.Config {
	cfg := retry.DefaultConfig()
	if v, err := strconv.Atoi(os.Getenv(EnvMaxRetries)); err == nil {
		cfg.MaxRetries = v
	}
	if v, err := strconv.ParseFloat(os.Getenv(EnvInitialDelay), 64); err == nil {
		cfg.InitialDelay = time.Duration(v * float64(time.Second))
	}
	if v, err := strconv.ParseFloat(os.Getenv(EnvMaxDelay), 64); err == nil {
		cfg.MaxDelay = time.Duration(v * float64(time.Second))
	}
	if v, err := strconv.ParseFloat(os.Getenv(EnvBackoffFactor), 64); err == nil {
		cfg.BackoffFactor = v
	}
	if v, err := strconv.ParseBool(os.Getenv(EnvRetryJitter)); err == nil {
		cfg.Jitter = v
	}
	return cfg
}
