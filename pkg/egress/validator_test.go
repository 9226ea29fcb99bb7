package egress

import (
	"net"
	"strings"
	"testing"
)

func staticLookup(addrs map[string][]string) LookupFunc {
	return func(host string) ([]net.IP, error) {
		var ips []net.IP
		for _, a := range addrs[host] {
			ips = append(ips, net.ParseIP(a))
		}
		if len(ips) == 0 {
			return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
		}
		return ips, nil
	}
}

func TestPublicIPAllowed(t *testing.T) {
	v := NewValidator(
		WithWhitelist(nil),
		WithLookup(staticLookup(map[string][]string{"api.openai.com": {"104.18.7.192"}})),
	)

	if err := v.Validate("https://api.openai.com/v1/chat/completions"); err != nil {
		t.Fatalf("public IP should be allowed: %v", err)
	}
}

func TestPrivateIPBlockedByDefault(t *testing.T) {
	v := NewValidator(
		WithWhitelist(ParseWhitelist("")),
		WithLookup(staticLookup(map[string][]string{"internal.example": {"192.168.1.100"}})),
	)

	err := v.Validate("https://internal.example:8080")
	if err == nil {
		t.Fatal("expected private IP to be blocked")
	}
	msg := err.Error()
	if !strings.Contains(msg, "not in") || !strings.Contains(msg, "whitelist") {
		t.Errorf("error should mention whitelist rejection, got %q", msg)
	}
}

func TestMetadataServiceBlocked(t *testing.T) {
	v := NewValidator(
		WithWhitelist(nil),
		WithLookup(staticLookup(map[string][]string{"metadata.internal": {"169.254.169.254"}})),
	)
	if err := v.Validate("http://metadata.internal/latest/meta-data/"); err == nil {
		t.Error("metadata service address should be blocked")
	}
}

func TestLoopbackBlocked(t *testing.T) {
	v := NewValidator(
		WithWhitelist(nil),
		WithLookup(staticLookup(map[string][]string{"localhost": {"127.0.0.1"}})),
	)
	if err := v.Validate("http://localhost:9000"); err == nil {
		t.Error("loopback should be blocked without a whitelist entry")
	}
}

func TestPortSpecificWhitelist(t *testing.T) {
	lookup := staticLookup(map[string][]string{"internal.example": {"192.168.1.100"}})
	v := NewValidator(
		WithWhitelist(ParseWhitelist("192.168.1.100:8080")),
		WithLookup(lookup),
	)

	if err := v.Validate("https://internal.example:8080"); err != nil {
		t.Errorf("whitelisted port should pass: %v", err)
	}
	if err := v.Validate("https://internal.example:9000"); err == nil {
		t.Error("non-whitelisted port should be blocked")
	}
}

func TestCIDRWhitelistAnyPort(t *testing.T) {
	v := NewValidator(
		WithWhitelist(ParseWhitelist("10.0.0.0/8")),
		WithLookup(staticLookup(map[string][]string{"db.internal": {"10.42.0.7"}})),
	)
	if err := v.Validate("http://db.internal:5432"); err != nil {
		t.Errorf("CIDR whitelist without port should cover any port: %v", err)
	}
}

func TestDNSFailureIsValidationFailure(t *testing.T) {
	v := NewValidator(
		WithWhitelist(nil),
		WithLookup(staticLookup(nil)),
	)
	if err := v.Validate("https://does-not-resolve.example"); err == nil {
		t.Error("DNS failure must fail validation")
	}
}

func TestMissingHostname(t *testing.T) {
	v := NewValidator(WithWhitelist(nil), WithLookup(staticLookup(nil)))
	if err := v.Validate("not-a-url"); err == nil {
		t.Error("URL without hostname must fail")
	}
}

func TestParseWhitelistSkipsBadTokens(t *testing.T) {
	entries := ParseWhitelist("garbage, 192.168.1.5, 10.0.0.0/8:6333, :9999, 256.1.1.1")
	if len(entries) != 2 {
		t.Fatalf("expected 2 valid entries, got %d", len(entries))
	}
	if entries[0].Port != 0 {
		t.Errorf("bare IP entry should have no port, got %d", entries[0].Port)
	}
	if entries[1].Port != 6333 {
		t.Errorf("expected port 6333, got %d", entries[1].Port)
	}
}

func TestParseWhitelistIPv6(t *testing.T) {
	entries := ParseWhitelist("fc00::/7")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].Network.Contains(net.ParseIP("fc00::1")) {
		t.Error("IPv6 CIDR entry should contain addresses in range")
	}
}
