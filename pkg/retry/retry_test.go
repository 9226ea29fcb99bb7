package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

func testRetryer(t *testing.T, cfg Config) *Retryer {
	t.Helper()
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	return r
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero retries allowed", Config{MaxRetries: 0, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 2}, false},
		{"negative retries", Config{MaxRetries: -1, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 2}, true},
		{"zero initial delay", Config{MaxRetries: 1, InitialDelay: 0, MaxDelay: time.Second, BackoffFactor: 2}, true},
		{"zero max delay", Config{MaxRetries: 1, InitialDelay: time.Second, MaxDelay: 0, BackoffFactor: 2}, true},
		{"zero backoff factor", Config{MaxRetries: 1, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDelayBounds(t *testing.T) {
	cfg := Config{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2, Jitter: true}
	r := testRetryer(t, cfg)

	for attempt := 0; attempt < 8; attempt++ {
		delay := r.Delay(attempt)
		floor := time.Duration(float64(cfg.InitialDelay) * pow(cfg.BackoffFactor, attempt))
		if floor > cfg.MaxDelay {
			floor = cfg.MaxDelay
		}
		ceil := time.Duration(float64(floor) * 1.25)
		if ceil > cfg.MaxDelay {
			ceil = cfg.MaxDelay
		}
		if delay > cfg.MaxDelay {
			t.Errorf("attempt %d: delay %v exceeds max %v", attempt, delay, cfg.MaxDelay)
		}
		if delay < floor && floor < cfg.MaxDelay {
			t.Errorf("attempt %d: delay %v below floor %v", attempt, delay, floor)
		}
		_ = ceil
	}
}

func pow(factor float64, attempt int) float64 {
	out := 1.0
	for i := 0; i < attempt; i++ {
		out *= factor
	}
	return out
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	r := testRetryer(t, Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2})

	calls := 0
	err := r.Do(context.Background(), "flaky", func() error {
		calls++
		if calls < 3 {
			return &StatusError{StatusCode: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustionReturnsLastError(t *testing.T) {
	r := testRetryer(t, Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2})

	calls := 0
	last := &StatusError{StatusCode: 502, Message: "bad gateway"}
	err := r.Do(context.Background(), "always-down", func() error {
		calls++
		return last
	})
	if !errors.Is(err, last) && err != error(last) {
		t.Errorf("expected last error back, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	r := testRetryer(t, Config{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2})

	calls := 0
	err := r.Do(context.Background(), "bad-request", func() error {
		calls++
		return &StatusError{StatusCode: 400, Message: "bad request"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error should not be retried, got %d calls", calls)
	}
}

func TestIsRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"502", &StatusError{StatusCode: 502}, true},
		{"503", &StatusError{StatusCode: 503}, true},
		{"504", &StatusError{StatusCode: 504}, true},
		{"404", &StatusError{StatusCode: 404}, false},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"host unreachable", fmt.Errorf("dial: %w", syscall.EHOSTUNREACH), true},
		{"context canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoWithResult(t *testing.T) {
	r := testRetryer(t, Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2})

	calls := 0
	got, err := DoWithResult(context.Background(), r, "fetch", func() (string, error) {
		calls++
		if calls == 1 {
			return "", &StatusError{StatusCode: 503}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected %q, got %q", "ok", got)
	}
}

func TestDoRespectsContext(t *testing.T) {
	r := testRetryer(t, Config{MaxRetries: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, "canceled", func() error {
		return &StatusError{StatusCode: 503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
