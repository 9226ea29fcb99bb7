// Package egress validates every URL an adapter will contact before any
// socket is opened. Hostnames are resolved and private addresses are
// rejected unless a whitelist entry covers the resolved (ip, port) pair.
package egress

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

// privateRanges is the fixed table of blocked networks. It covers loopback,
// RFC1918, link-local, "this network", multicast, reserved, and their IPv6
// counterparts including the cloud metadata endpoint range.
var privateRanges = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("bad builtin CIDR %q: %v", c, err))
		}
		nets = append(nets, network)
	}
	return nets
}

// LookupFunc resolves a hostname to its addresses. Swappable for tests.
type LookupFunc func(host string) ([]net.IP, error)

// Validator checks adapter URLs against the private-range table and the
// configured whitelist.
type Validator struct {
	whitelist []WhitelistEntry
	lookup    LookupFunc
}

// Option configures a Validator.
type Option func(*Validator)

// WithLookup overrides DNS resolution.
func WithLookup(fn LookupFunc) Option {
	return func(v *Validator) { v.lookup = fn }
}

// WithWhitelist sets the private-endpoint whitelist explicitly.
func WithWhitelist(entries []WhitelistEntry) Option {
	return func(v *Validator) { v.whitelist = entries }
}

// NewValidator creates a validator. Without WithWhitelist the whitelist is
// read from ALLOWED_ADAPTER_PRIVATE_ENDPOINTS.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		whitelist: WhitelistFromEnv(),
		lookup:    net.LookupIP,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate parses and resolves rawURL and rejects it when any resolved
// address falls in a private range without a matching whitelist entry.
// DNS failure is a validation failure.
func (v *Validator) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindAdapter, fmt.Sprintf("invalid URL %q", rawURL), err)
	}

	host := parsed.Hostname()
	if host == "" {
		return sdkerr.Newf(sdkerr.KindAdapter, "URL %q has no hostname", rawURL)
	}

	var port int
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return sdkerr.Newf(sdkerr.KindAdapter, "URL %q has invalid port %q", rawURL, p)
		}
	}

	ips, err := v.lookup(host)
	if err != nil || len(ips) == 0 {
		return sdkerr.Wrap(sdkerr.KindAdapter,
			fmt.Sprintf("could not resolve hostname %q", host), err)
	}

	for _, ip := range ips {
		if !isPrivate(ip) {
			continue
		}
		if !v.whitelisted(ip, port) {
			return sdkerr.Newf(sdkerr.KindAdapter,
				"URL %q resolves to private address %s which is not in the allowed endpoint whitelist",
				rawURL, ip)
		}
	}

	return nil
}

// ValidateAll validates every URL, failing on the first rejection.
func (v *Validator) ValidateAll(urls []string) error {
	for _, u := range urls {
		if err := v.Validate(u); err != nil {
			return err
		}
	}
	return nil
}

func isPrivate(ip net.IP) bool {
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// whitelisted reports whether (ip, port) is covered by a whitelist entry:
// the ip must lie inside the entry network and the entry port, when set,
// must equal the URL's explicit port.
func (v *Validator) whitelisted(ip net.IP, port int) bool {
	for _, entry := range v.whitelist {
		if !entry.Network.Contains(ip) {
			continue
		}
		if entry.Port == 0 || entry.Port == port {
			return true
		}
	}
	return false
}
