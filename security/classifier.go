// Package security decides whether a dial target may carry bearer tokens
// without transport encryption.
//
// A target is "known-secure" only when the application says so: its address
// falls inside a configured CIDR, its host name matches a configured host
// pattern, or it is a unix socket and unix sockets are trusted. Everything
// else, including targets that cannot be parsed, is treated as not secure.
package security

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/Keksclan/goRawrCreds/autherr"
)

// Config holds the configuration for a Classifier.
type Config struct {
	// SecureCIDRs lists networks whose addresses are trusted without TLS,
	// e.g. a service-mesh range. A bare IP is a single-host prefix.
	SecureCIDRs []string
	// SecureHosts lists host names trusted without TLS. An entry starting
	// with a dot matches any subdomain: ".svc.local" matches "a.svc.local".
	SecureHosts []string
	// TrustUnixSockets marks unix and unix-abstract targets as secure.
	TrustUnixSockets bool
}

// Classifier evaluates dial targets against a Config. The zero value and a
// nil *Classifier know nothing as secure.
type Classifier struct {
	cidrs    []netip.Prefix
	exact    map[string]struct{}
	suffixes []string
	unix     bool
}

// NewClassifier parses cfg up-front and returns a ConfigError if any entry is
// invalid.
func NewClassifier(cfg Config) (*Classifier, error) {
	cidrs, err := parsePrefixes(cfg.SecureCIDRs)
	if err != nil {
		return nil, autherr.Config("security.NewClassifier", fmt.Errorf("invalid CIDR: %w", err))
	}

	c := &Classifier{
		cidrs: cidrs,
		exact: make(map[string]struct{}, len(cfg.SecureHosts)),
		unix:  cfg.TrustUnixSockets,
	}
	for _, h := range cfg.SecureHosts {
		h = normalizeHost(h)
		switch {
		case h == "" || h == ".":
			return nil, autherr.Configf("security.NewClassifier", "empty secure host pattern")
		case strings.HasPrefix(h, "."):
			c.suffixes = append(c.suffixes, h)
		default:
			c.exact[h] = struct{}{}
		}
	}
	return c, nil
}

// IsKnownSecure reports whether target was declared secure.
func (c *Classifier) IsKnownSecure(target string) bool {
	if c == nil {
		return false
	}

	t, ok := ParseTarget(target)
	if !ok {
		return false
	}
	if t.Unix {
		return c.unix
	}

	if addr, err := netip.ParseAddr(t.Host); err == nil {
		return matchesAny(addr.Unmap(), c.cidrs)
	}

	host := normalizeHost(t.Host)
	if _, ok := c.exact[host]; ok {
		return true
	}
	for _, s := range c.suffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

// IsKnownSecureAddr is IsKnownSecure for a connected peer. Unix peers are
// usually unnamed, so the network alone decides for them.
func (c *Classifier) IsKnownSecureAddr(addr net.Addr) bool {
	if c == nil || addr == nil {
		return false
	}
	switch addr.Network() {
	case "unix", "unixpacket":
		return c.unix
	}
	return c.IsKnownSecure(addr.String())
}

// matchesAny reports whether addr is contained in any of the prefixes.
func matchesAny(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parsePrefixes parses a slice of CIDR strings into netip.Prefix values.
// A plain IP address (without a prefix length) is treated as a single-host
// prefix (/32 for IPv4, /128 for IPv6).
func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(strings.TrimSpace(s))
		if err != nil {
			addr, addrErr := netip.ParseAddr(strings.TrimSpace(s))
			if addrErr != nil {
				return nil, fmt.Errorf("%q: %w", s, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}
