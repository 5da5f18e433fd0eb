package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"v6probe/internal/config"
	"v6probe/internal/model"
	"v6probe/internal/probe"
	"v6probe/internal/report"
)

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(probe.Target) probe.Outcome
}

func (f *countingFetcher) Fetch(_ context.Context, t probe.Target) probe.Outcome {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(t)
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Probe: config.ProbeConfig{
		DirectTarget:   "http://v6.example.com/p",
		ResolvedTarget: "http://name.example.com/p",
		TimeoutMs:      1200,
	}}
	f := &countingFetcher{fn: func(t probe.Target) probe.Outcome {
		if t.URL() == "http://v6.example.com/p" {
			return probe.Outcome{Success: true, Elapsed: 85 * time.Millisecond}
		}
		return probe.Outcome{TimedOut: true, Elapsed: 1200 * time.Millisecond}
	}}
	latest := &report.Latest{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := Run(ctx, cfg, Deps{Fetcher: f, Reporter: latest})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Reported {
		t.Fatal("expected a record")
	}
	if res.Measurement.Direct != model.Latency(85) || res.Measurement.Resolved != model.NotSupported() {
		t.Fatalf("record=%+v", res.Measurement)
	}
	if m, ok := latest.Get(); !ok || m != res.Measurement {
		t.Fatalf("latest=%+v", m)
	}
	if f.count() != 2 {
		t.Fatalf("fetches=%d", f.count())
	}
}

func TestRun_NoDirectTarget(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Probe: config.ProbeConfig{ResolvedTarget: "http://name.example.com/p"}}
	f := &countingFetcher{fn: func(probe.Target) probe.Outcome { return probe.Outcome{Success: true} }}
	latest := &report.Latest{}

	res, err := Run(context.Background(), cfg, Deps{Fetcher: f, Reporter: latest})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reported {
		t.Fatalf("record=%+v", res.Measurement)
	}
	if f.count() != 0 {
		t.Fatalf("fetches=%d", f.count())
	}
	if _, ok := latest.Get(); ok {
		t.Fatal("nothing should be reported")
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Probe: config.ProbeConfig{DirectTarget: "http://[2001:db8::1]/p"}}
	block := make(chan struct{})
	defer close(block)
	f := &countingFetcher{fn: func(probe.Target) probe.Outcome {
		<-block
		return probe.Outcome{}
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := Run(ctx, cfg, Deps{Fetcher: f}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestProbeConfig(t *testing.T) {
	t.Parallel()

	pc := ProbeConfig(config.ProbeConfig{DirectTarget: "a", ResolvedTarget: "b", TimeoutMs: 1500, Secure: true})
	if pc.Timeout != 1500*time.Millisecond || !pc.Secure || pc.DirectTarget != "a" || pc.ResolvedTarget != "b" {
		t.Fatalf("cfg=%+v", pc)
	}
}

func TestNewFetcher_DNSServer(t *testing.T) {
	t.Parallel()

	if f := NewFetcher(config.ProbeConfig{DNSServer: "2001:db8::53"}); f.Resolver == nil {
		t.Fatal("resolver not set")
	}
}

type chanReporter chan model.Measurement

func (c chanReporter) Report(_ context.Context, m model.Measurement) error {
	c <- m
	return nil
}

func TestRun_HostCancelReportsTrueResult(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Probe: config.ProbeConfig{DirectTarget: "http://[2001:db8::1]/p", TimeoutMs: 1200}}
	f := probe.FetcherFunc(func(ctx context.Context, _ probe.Target) probe.Outcome {
		select {
		case <-ctx.Done():
			return probe.Outcome{Err: ctx.Err()}
		case <-time.After(150 * time.Millisecond):
			return probe.Outcome{Success: true, Elapsed: 150 * time.Millisecond}
		}
	})
	reports := make(chanReporter, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := Run(ctx, cfg, Deps{Fetcher: f, Reporter: reports}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}

	select {
	case m := <-reports:
		if m.Direct != model.Latency(150) || m.Resolved != model.NotAttempted() {
			t.Fatalf("record=%+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never settled")
	}
	select {
	case m := <-reports:
		t.Fatalf("second record %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}
