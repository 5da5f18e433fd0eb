package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"v6probe/internal/addrutil"
)

// ErrNoAAAA is returned when a name has no IPv6 addresses.
var ErrNoAAAA = errors.New("no AAAA records")

// Resolver looks up the IPv6 addresses of a hostname.
type Resolver interface {
	LookupAAAA(ctx context.Context, host string) ([]netip.Addr, error)
}

// SystemResolver asks the OS resolver for ip6 addresses only.
type SystemResolver struct {
	Resolver *net.Resolver
}

func (s SystemResolver) LookupAAAA(ctx context.Context, host string) ([]netip.Addr, error) {
	r := s.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip6", host)
	if err != nil {
		return nil, err
	}
	return only6(addrs, host)
}

// DNSResolver sends AAAA queries straight to one DNS server, bypassing the
// host's resolver configuration.
type DNSResolver struct {
	Server string // host or host:port; port defaults to 53
	Client *dns.Client
}

func NewDNSResolver(server string) *DNSResolver {
	return &DNSResolver{
		Server: addrutil.JoinPort(server, 53),
		Client: &dns.Client{Net: "udp", Timeout: 2 * time.Second},
	}
}

func (d *DNSResolver) LookupAAAA(ctx context.Context, host string) ([]netip.Addr, error) {
	client := d.Client
	if client == nil {
		client = &dns.Client{Net: "udp"}
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeAAAA)
	msg.RecursionDesired = true

	resp, _, err := client.ExchangeContext(ctx, msg, d.Server)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", d.Server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("query %s for %s: %s", d.Server, host, dns.RcodeToString[resp.Rcode])
	}

	var addrs []netip.Addr
	for _, rr := range resp.Answer {
		aaaa, ok := rr.(*dns.AAAA)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(aaaa.AAAA); ok {
			addrs = append(addrs, addr)
		}
	}
	return only6(addrs, host)
}

func only6(addrs []netip.Addr, host string) ([]netip.Addr, error) {
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if a.Is6() && !a.Is4In6() {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", host, ErrNoAAAA)
	}
	return out, nil
}
