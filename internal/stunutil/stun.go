package stunutil

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/pion/stun/v3"

	"v6probe/internal/addrutil"
)

const (
	NATTypeUnknown = "unknown"
	NATTypeNone    = "none"
	NATTypeNAT66   = "nat66"
)

const defaultPort = 3478

// Mapping is the result of one successful IPv6 STUN binding.
type Mapping struct {
	Server string
	Local  string
	Mapped string
}

// ProbeIPv6 asks each STUN server, over udp6, for this host's mapped
// address and returns the first answer together with its NAT verdict.
func ProbeIPv6(ctx context.Context, servers []string, timeout time.Duration) (Mapping, string, error) {
	if len(servers) == 0 {
		return Mapping{}, NATTypeUnknown, fmt.Errorf("no STUN servers provided")
	}

	var lastErr error
	for _, server := range servers {
		m, err := probeServer(ctx, server, timeout)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			continue
		}
		return m, Classify(m.Local, m.Mapped), nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("STUN probe failed")
	}
	return Mapping{}, NATTypeUnknown, lastErr
}

// Classify compares the local and mapped addresses of a binding. Equal
// addresses mean the path carries no address translation.
func Classify(local, mapped string) string {
	l, errL := netip.ParseAddrPort(local)
	m, errM := netip.ParseAddrPort(mapped)
	if errL != nil || errM != nil {
		return NATTypeUnknown
	}
	if l.Addr().Unmap() == m.Addr().Unmap() {
		return NATTypeNone
	}
	return NATTypeNAT66
}

func probeServer(ctx context.Context, server string, timeout time.Duration) (Mapping, error) {
	addr := strings.TrimSpace(server)
	addr = strings.TrimPrefix(addr, "stun:")
	if addr == "" {
		return Mapping{}, fmt.Errorf("empty STUN server")
	}
	addr = addrutil.JoinPort(addr, defaultPort)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp6", addr)
	if err != nil {
		return Mapping{}, err
	}

	client, err := stun.NewClient(conn)
	if err != nil {
		conn.Close()
		return Mapping{}, err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	go func() {
		var xor stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := xor.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- xor
		})
		if err != nil {
			fail <- err
		}
	}()

	select {
	case xor := <-result:
		return Mapping{
			Server: conn.RemoteAddr().String(),
			Local:  conn.LocalAddr().String(),
			Mapped: xor.String(),
		}, nil
	case err := <-fail:
		return Mapping{}, err
	case <-ctx.Done():
		return Mapping{}, ctx.Err()
	}
}
