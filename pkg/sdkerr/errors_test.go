package sdkerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindLLM, "completion failed", cause)

	if !errors.Is(err, cause) {
		t.Errorf("wrapped error should match cause via errors.Is")
	}
	if err.Error() != "completion failed" {
		t.Errorf("expected message %q, got %q", "completion failed", err.Error())
	}
}

func TestResolveStatusTranslates500(t *testing.T) {
	if got := ResolveStatus(http.StatusInternalServerError); got != http.StatusBadGateway {
		t.Errorf("expected 502 for upstream 500, got %d", got)
	}
	if got := ResolveStatus(http.StatusForbidden); got != http.StatusForbidden {
		t.Errorf("4xx should pass through, got %d", got)
	}
}

func TestWithStatus(t *testing.T) {
	err := New(KindVectorDB, "upsert failed").WithStatus(500)
	if err.StatusCode != 502 {
		t.Errorf("expected 502, got %d", err.StatusCode)
	}
}

func TestIsKindWalksChain(t *testing.T) {
	inner := New(KindRateLimit, "too many requests")
	outer := fmt.Errorf("calling provider: %w", Wrap(KindLLM, "completion failed", inner))

	if !IsKind(outer, KindLLM) {
		t.Errorf("expected LLM kind in chain")
	}
	if !IsKind(outer, KindRateLimit) {
		t.Errorf("expected rate limit kind in chain")
	}
	if IsKind(outer, KindStorage) {
		t.Errorf("storage kind should not match")
	}
}

func TestRateLimitDefaultStatus(t *testing.T) {
	err := New(KindRateLimit, "throttled")
	if err.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", err.StatusCode)
	}
}
