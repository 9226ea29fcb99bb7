// Package retry implements exponential backoff with optional jitter for
// calls against the platform and other remote services.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Config controls the backoff schedule.
type Config struct {
	// MaxRetries is the number of retry attempts after the first call.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after every attempt.
	BackoffFactor float64

	// Jitter adds a random 0-25% on top of each delay when set.
	Jitter bool
}

// DefaultConfig returns the stock schedule: 3 retries starting at 1s,
// doubling, capped at 30s, with jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
		Jitter:        true,
	}
}

// Validate checks parameter bounds.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be > 0, got %v", c.InitialDelay)
	}
	if c.MaxDelay <= 0 {
		return fmt.Errorf("max delay must be > 0, got %v", c.MaxDelay)
	}
	if c.BackoffFactor <= 0 {
		return fmt.Errorf("backoff factor must be > 0, got %v", c.BackoffFactor)
	}
	return nil
}

// StatusError marks an HTTP failure so the classifier can see the code.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Retryer executes operations under the configured schedule.
type Retryer struct {
	config Config
}

// New creates a Retryer. Invalid configs fall back to defaults per field.
func New(cfg Config) (*Retryer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Retryer{config: cfg}, nil
}

// Do runs fn, retrying on retryable failures until the budget is spent.
// The last error is returned on exhaustion.
func (r *Retryer) Do(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt >= r.config.MaxRetries {
			slog.Error("Retries exhausted",
				"operation", operation,
				"attempts", attempt+1,
				"error", err)
			return err
		}

		delay := r.Delay(attempt)
		slog.Warn("Retrying operation",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", r.config.MaxRetries+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// DoWithResult runs an operation returning a value under the same schedule.
func DoWithResult[T any](ctx context.Context, r *Retryer, operation string, fn func() (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, operation, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}

// Delay computes the backoff for the given zero-based attempt:
// min(initial * factor^attempt * (1 + U[0,0.25]), max).
func (r *Retryer) Delay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt))
	if r.config.Jitter {
		delay *= 1 + rand.Float64()*0.25
	}
	if capped := float64(r.config.MaxDelay); delay > capped {
		delay = capped
	}
	return time.Duration(delay)
}

var retryableErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ETIMEDOUT,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
}

// IsRetryable classifies an error as transient: connection and timeout
// failures, HTTP 502/503/504, and the retryable errno set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	for _, errno := range retryableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	return false
}
