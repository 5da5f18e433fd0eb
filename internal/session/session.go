// Package session runs one measurement cycle the way a host page would: it
// builds the event bus and completion gate, attaches the IPv6 coordinator,
// fires the ready event and waits for the gate to open.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"v6probe/internal/config"
	"v6probe/internal/fetch"
	"v6probe/internal/lifecycle"
	"v6probe/internal/model"
	"v6probe/internal/probe"
)

// PluginName is the gate member name of the IPv6 coordinator.
const PluginName = "ipv6"

// Deps are the collaborators of a session. A nil Fetcher is replaced with an
// HTTPFetcher configured from the probe config.
type Deps struct {
	Fetcher  probe.Fetcher
	Reporter probe.Reporter
	Logger   *zap.Logger
}

// Result is what one cycle produced.
type Result struct {
	Measurement model.Measurement
	Reported    bool // false when the measurement was abandoned
	Duration    time.Duration
}

// ProbeConfig converts the file config into the coordinator's config.
func ProbeConfig(cfg config.ProbeConfig) probe.Config {
	return probe.Config{
		DirectTarget:   cfg.DirectTarget,
		ResolvedTarget: cfg.ResolvedTarget,
		Timeout:        time.Duration(cfg.TimeoutMs) * time.Millisecond,
		Secure:         cfg.Secure,
	}
}

// NewFetcher builds the default fetcher for cfg.
func NewFetcher(cfg config.ProbeConfig) *fetch.HTTPFetcher {
	if cfg.DNSServer != "" {
		return fetch.NewHTTPFetcher(fetch.NewDNSResolver(cfg.DNSServer))
	}
	return fetch.NewHTTPFetcher(fetch.SystemResolver{})
}

// Run executes one cycle and blocks until the completion gate opens or ctx
// is cancelled.
func Run(ctx context.Context, cfg config.Config, deps Deps) (Result, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	fetcher := deps.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(cfg.Probe)
	}

	bus := lifecycle.NewBus(log)
	gate := lifecycle.NewGate()

	coord := probe.New(ProbeConfig(cfg.Probe), probe.Deps{
		Fetcher:  fetcher,
		Reporter: deps.Reporter,
		Events:   bus,
		Logger:   log.Named(PluginName),
	})
	gate.Register(PluginName, coord)

	start := time.Now()
	bus.Publish(ctx, lifecycle.EventReady)
	if err := gate.Wait(ctx); err != nil {
		log.Warn("measurement did not complete", zap.Strings("pending", gate.Pending()), zap.Error(err))
		return Result{Duration: time.Since(start)}, err
	}

	m, ok := coord.Result()
	return Result{Measurement: m, Reported: ok, Duration: time.Since(start)}, nil
}
