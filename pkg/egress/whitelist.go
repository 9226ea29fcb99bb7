package egress

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// EnvAllowedPrivateEndpoints holds a comma-separated list of whitelist
// tokens, each "IP[/CIDR][:PORT]".
const EnvAllowedPrivateEndpoints = "ALLOWED_ADAPTER_PRIVATE_ENDPOINTS"

// WhitelistEntry permits a private network, optionally pinned to one port.
type WhitelistEntry struct {
	Network *net.IPNet
	Port    int // 0 means any port
}

// WhitelistFromEnv parses ALLOWED_ADAPTER_PRIVATE_ENDPOINTS. Unparseable
// tokens are logged and skipped so a single bad entry cannot disable the
// rest of the whitelist.
func WhitelistFromEnv() []WhitelistEntry {
	return ParseWhitelist(os.Getenv(EnvAllowedPrivateEndpoints))
}

// ParseWhitelist parses a comma-separated whitelist string.
func ParseWhitelist(raw string) []WhitelistEntry {
	var entries []WhitelistEntry
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		entry, ok := parseToken(token)
		if !ok {
			slog.Warn("Skipping unparseable whitelist entry", "entry", token)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// parseToken parses "IP[/CIDR][:PORT]". A bare IP becomes a single-host
// network. The port suffix is only split off when the remainder still
// parses as an address, which keeps bare IPv6 literals intact.
func parseToken(token string) (WhitelistEntry, bool) {
	if entry, ok := parseAddress(token, 0); ok {
		return entry, true
	}

	idx := strings.LastIndex(token, ":")
	if idx <= 0 || idx == len(token)-1 {
		return WhitelistEntry{}, false
	}
	port, err := strconv.Atoi(token[idx+1:])
	if err != nil || port <= 0 || port > 65535 {
		return WhitelistEntry{}, false
	}
	return parseAddress(token[:idx], port)
}

func parseAddress(addr string, port int) (WhitelistEntry, bool) {
	addr = strings.Trim(addr, "[]")

	if strings.Contains(addr, "/") {
		_, network, err := net.ParseCIDR(addr)
		if err != nil {
			return WhitelistEntry{}, false
		}
		return WhitelistEntry{Network: network, Port: port}, true
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return WhitelistEntry{}, false
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return WhitelistEntry{
		Network: &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)},
		Port:    port,
	}, true
}
