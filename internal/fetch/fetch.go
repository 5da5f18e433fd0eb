// Package fetch implements the timed fetch used by the IPv6 probes: one small
// HTTP GET, forced onto IPv6, bounded by the probe target's timeout.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"v6probe/internal/addrutil"
	"v6probe/internal/probe"
)

// DefaultMaxBody caps how much of the response body is read.
const DefaultMaxBody = 64 << 10

var errNotIPv6 = errors.New("target host is an IPv4 address")

// HTTPFetcher is a probe.Fetcher that only ever connects over tcp6.
type HTTPFetcher struct {
	Resolver  Resolver
	Dialer    *net.Dialer
	TLSConfig *tls.Config
	MaxBody   int64
}

func NewHTTPFetcher(res Resolver) *HTTPFetcher {
	if res == nil {
		res = SystemResolver{}
	}
	return &HTTPFetcher{
		Resolver: res,
		Dialer:   &net.Dialer{},
		MaxBody:  DefaultMaxBody,
	}
}

// Fetch performs a single GET. Connections are never reused between fetches,
// so each one pays for its own resolution and handshake.
func (f *HTTPFetcher) Fetch(ctx context.Context, t probe.Target) probe.Outcome {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout())
	defer cancel()

	transport := &http.Transport{
		DialContext:       f.dialContext,
		TLSClientConfig:   f.TLSConfig,
		DisableKeepAlives: true,
		ForceAttemptHTTP2: false,
	}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL(), nil)
	if err != nil {
		return probe.Outcome{Err: err}
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := client.Do(req)
	var status int
	var statusText string
	if err == nil {
		status, statusText = resp.StatusCode, resp.Status
		_, err = io.CopyN(io.Discard, resp.Body, f.maxBody())
		if errors.Is(err, io.EOF) {
			err = nil
		}
		resp.Body.Close()
	}
	elapsed := time.Since(start)

	out := probe.Outcome{Elapsed: elapsed}
	switch {
	case err != nil:
		out.Err = err
		out.TimedOut = isTimeout(ctx, err)
	case status >= http.StatusBadRequest:
		out.Err = fmt.Errorf("unexpected status %s", statusText)
	case elapsed >= t.Timeout():
		// A response landing exactly on the budget still counts as a timeout.
		out.TimedOut = true
	default:
		out.Success = true
	}
	return out
}

func (f *HTTPFetcher) dialContext(ctx context.Context, _ string, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	d := f.Dialer
	if d == nil {
		d = &net.Dialer{}
	}

	if addrutil.IsIPv6Literal(host) {
		return d.DialContext(ctx, "tcp6", net.JoinHostPort(strings.Trim(host, "[]"), port))
	}
	if ip := net.ParseIP(host); ip != nil {
		return nil, fmt.Errorf("%s: %w", host, errNotIPv6)
	}

	res := f.Resolver
	if res == nil {
		res = SystemResolver{}
	}
	addrs, err := res.LookupAAAA(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	var lastErr error
	for _, a := range addrs {
		conn, err := d.DialContext(ctx, "tcp6", net.JoinHostPort(a.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (f *HTTPFetcher) maxBody() int64 {
	if f.MaxBody <= 0 {
		return DefaultMaxBody
	}
	return f.MaxBody
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
