package addrutil

import (
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// TargetHost returns the host part of a probe URL, without brackets or port.
// It returns "" when raw is empty or not a URL with a host.
func TargetHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsIPv6Literal reports whether host is a literal IPv6 address. IPv4-mapped
// addresses do not count: a fetch to them never leaves over IPv6.
func IsIPv6Literal(host string) bool {
	host = strings.Trim(host, "[]")
	if i := strings.IndexByte(host, '%'); i >= 0 {
		host = host[:i]
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.Is6() && !addr.Is4In6()
}

// HostFromAddr extracts the host from "host:port", "[v6]:port", an unbracketed
// "v6:port" or a bare host.
func HostFromAddr(addr string) string {
	a := strings.TrimSpace(addr)
	if a == "" {
		return ""
	}

	// Fast path: "host:port" (IPv4 or bracketed IPv6).
	if h, _, err := net.SplitHostPort(a); err == nil {
		return h
	}

	// A bare IPv6 literal is ambiguous with "v6:port"; prefer the literal.
	if IsIPv6Literal(a) {
		return strings.Trim(a, "[]")
	}

	// Handle unbracketed IPv6 "host:port" by peeling off the last ":port".
	if strings.Count(a, ":") > 1 && !strings.HasPrefix(a, "[") {
		if last := strings.LastIndexByte(a, ':'); last > 0 && last < len(a)-1 {
			host := a[:last]
			port := a[last+1:]
			if _, err := strconv.Atoi(port); err == nil {
				return host
			}
		}
	}

	if strings.Contains(a, ":") {
		return strings.Trim(a, "[]")
	}
	return a
}

// JoinPort joins host with port, defaulting the port when addr has none.
func JoinPort(addr string, defaultPort int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(HostFromAddr(addr), strconv.Itoa(defaultPort))
}
