// Package probe measures whether IPv6 is usable from this host.
//
// Two timed fetches race independently: one against a fixed IPv6 address
// (the direct slot) and one against a hostname that must resolve to IPv6
// (the resolved slot). Each slot is classified as not attempted, not
// supported, or a latency in milliseconds, and a single measurement record
// is emitted once every configured slot has settled.
package probe

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"v6probe/internal/lifecycle"
	"v6probe/internal/model"
)

// DefaultTimeout bounds each fetch when the config leaves it unset.
const DefaultTimeout = 1200 * time.Millisecond

// Slot is one of the two probe roles.
type Slot int

const (
	Direct Slot = iota
	Resolved
	slotCount
)

func (s Slot) String() string {
	switch s {
	case Direct:
		return "direct"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}

// Key is the report key the slot's value is published under.
func (s Slot) Key() string {
	if s == Resolved {
		return model.KeyLookup
	}
	return model.KeyLatency
}

func (s Slot) valid() bool { return s >= Direct && s < slotCount }

// Target is an immutable, scheme-normalized probe locator plus its timeout.
// The zero Target is empty and means the slot is skipped.
type Target struct {
	url     string
	timeout time.Duration
}

// NewTarget normalizes raw to the embedding context's scheme. A non-positive
// timeout falls back to DefaultTimeout.
func NewTarget(raw string, timeout time.Duration, secure bool) Target {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Target{url: NormalizeScheme(raw, secure), timeout: timeout}
}

func (t Target) URL() string            { return t.url }
func (t Target) Timeout() time.Duration { return t.timeout }
func (t Target) Empty() bool            { return t.url == "" }

// NormalizeScheme rewrites a leading http: to https: in a secure context, and a
// leading https: to http: otherwise. Other schemes are returned unchanged.
func NormalizeScheme(raw string, secure bool) string {
	if secure {
		if hasSchemePrefix(raw, "http:") {
			return "https:" + raw[len("http:"):]
		}
		return raw
	}
	if hasSchemePrefix(raw, "https:") {
		return "http:" + raw[len("https:"):]
	}
	return raw
}

func hasSchemePrefix(raw, scheme string) bool {
	return len(raw) >= len(scheme) && strings.EqualFold(raw[:len(scheme)], scheme)
}

// Outcome is what a Fetcher reports for one fetch.
type Outcome struct {
	Success  bool
	TimedOut bool
	Elapsed  time.Duration
	Err      error
}

// Fetcher performs a single timed fetch. It must return exactly once, and is
// responsible for enforcing the target's timeout.
type Fetcher interface {
	Fetch(ctx context.Context, t Target) Outcome
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, t Target) Outcome

func (f FetcherFunc) Fetch(ctx context.Context, t Target) Outcome { return f(ctx, t) }

// Reporter receives the completed measurement.
type Reporter interface {
	Report(ctx context.Context, m model.Measurement) error
}

// Config is the probe configuration handed to New.
type Config struct {
	DirectTarget   string
	ResolvedTarget string
	Timeout        time.Duration
	Secure         bool // the embedding context uses https
}

// Deps are the collaborators a Coordinator is built with.
type Deps struct {
	Fetcher  Fetcher
	Reporter Reporter
	Events   lifecycle.Subscriber // Start is subscribed to lifecycle.EventReady
	Logger   *zap.Logger
}
