package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"

	"v6probe/internal/probe"
)

// newServer6 starts an httptest server on the IPv6 loopback, skipping the
// test when the host has no IPv6 stack.
func newServer6(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	l, err := net.Listen("tcp6", "[::1]:0")
	if err != nil {
		t.Skipf("no IPv6 loopback: %v", err)
	}
	s := httptest.NewUnstartedServer(h)
	s.Listener.Close()
	s.Listener = l
	s.Start()
	t.Cleanup(s.Close)
	return s
}

type staticResolver map[string][]netip.Addr

func (r staticResolver) LookupAAAA(_ context.Context, host string) ([]netip.Addr, error) {
	if addrs, ok := r[host]; ok {
		return addrs, nil
	}
	return nil, ErrNoAAAA
}

func TestFetch_DirectSuccess(t *testing.T) {
	t.Parallel()

	s := newServer6(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("GIF89a"))
	}))

	f := NewHTTPFetcher(staticResolver{})
	out := f.Fetch(context.Background(), probe.NewTarget(s.URL+"/p", 2*time.Second, false))
	if !out.Success || out.TimedOut || out.Err != nil {
		t.Fatalf("out=%+v", out)
	}
	if out.Elapsed <= 0 {
		t.Fatalf("elapsed=%s", out.Elapsed)
	}
}

func TestFetch_ResolvedSuccess(t *testing.T) {
	t.Parallel()

	s := newServer6(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	port := s.URL[strings.LastIndexByte(s.URL, ':')+1:]

	f := NewHTTPFetcher(staticResolver{"name.test": {netip.MustParseAddr("::1")}})
	out := f.Fetch(context.Background(), probe.NewTarget("http://name.test:"+port+"/p", 2*time.Second, false))
	if !out.Success {
		t.Fatalf("out=%+v", out)
	}
}

func TestFetch_NoAAAAIsFailure(t *testing.T) {
	t.Parallel()

	f := NewHTTPFetcher(staticResolver{})
	out := f.Fetch(context.Background(), probe.NewTarget("http://v4only.test/p", time.Second, false))
	if out.Success || out.TimedOut {
		t.Fatalf("out=%+v", out)
	}
	if !errors.Is(out.Err, ErrNoAAAA) {
		t.Fatalf("err=%v", out.Err)
	}
}

func TestFetch_IPv4LiteralRejected(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()

	f := NewHTTPFetcher(staticResolver{})
	out := f.Fetch(context.Background(), probe.NewTarget(s.URL, time.Second, false))
	if out.Success {
		t.Fatalf("fetch over IPv4 must not succeed: %+v", out)
	}
	if !errors.Is(out.Err, errNotIPv6) {
		t.Fatalf("err=%v", out.Err)
	}
}

func TestFetch_StatusErrorIsFailure(t *testing.T) {
	t.Parallel()

	s := newServer6(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))

	f := NewHTTPFetcher(staticResolver{})
	out := f.Fetch(context.Background(), probe.NewTarget(s.URL+"/p", 2*time.Second, false))
	if out.Success || out.TimedOut {
		t.Fatalf("out=%+v", out)
	}
	if out.Err == nil || !strings.Contains(out.Err.Error(), "404") {
		t.Fatalf("err=%v", out.Err)
	}
}

func TestFetch_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	s := newServer6(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer close(release)

	f := NewHTTPFetcher(staticResolver{})
	out := f.Fetch(context.Background(), probe.NewTarget(s.URL+"/p", 50*time.Millisecond, false))
	if out.Success || !out.TimedOut {
		t.Fatalf("out=%+v", out)
	}
}

func TestDNSResolver_LookupAAAA(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			switch {
			case q.Name == "name.test." && q.Qtype == dns.TypeAAAA:
				m.Answer = append(m.Answer, &dns.AAAA{
					Hdr:  dns.RR_Header{Name: q.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 60},
					AAAA: net.ParseIP("2001:db8::10"),
				})
			case q.Name == "v4only.test.":
			default:
				m.Rcode = dns.RcodeNameError
			}
			_ = w.WriteMsg(m)
		}),
	}
	started := make(chan struct{})
	srv.NotifyStartedFunc = func() { close(started) }
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	defer srv.Shutdown()

	r := NewDNSResolver(pc.LocalAddr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	addrs, err := r.LookupAAAA(ctx, "name.test")
	if err != nil {
		t.Fatalf("LookupAAAA: %v", err)
	}
	if len(addrs) != 1 || addrs[0] != netip.MustParseAddr("2001:db8::10") {
		t.Fatalf("addrs=%v", addrs)
	}

	if _, err := r.LookupAAAA(ctx, "v4only.test"); !errors.Is(err, ErrNoAAAA) {
		t.Fatalf("err=%v", err)
	}
	if _, err := r.LookupAAAA(ctx, "missing.test"); err == nil || !strings.Contains(err.Error(), "NXDOMAIN") {
		t.Fatalf("err=%v", err)
	}
}

func TestNewDNSResolver_DefaultPort(t *testing.T) {
	t.Parallel()

	if r := NewDNSResolver("2001:db8::53"); r.Server != "[2001:db8::53]:53" {
		t.Fatalf("server=%s", r.Server)
	}
}
