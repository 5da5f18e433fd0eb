package probe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"v6probe/internal/lifecycle"
	"v6probe/internal/model"
)

var errNoFetcher = errors.New("no fetcher configured")

type slotState struct {
	target Target
	result Result
}

// Coordinator owns the two probe slots of one measurement cycle.
//
// Outcomes may arrive in any order and from any goroutine; the record is
// emitted exactly once, after every configured slot has settled.
type Coordinator struct {
	fetcher  Fetcher
	reporter Reporter
	log      *zap.Logger

	mu      sync.Mutex
	slots   [slotCount]slotState
	ctx     context.Context
	started bool
	emitted bool
	record  *model.Measurement

	complete atomic.Bool
	done     chan struct{}
}

// New validates cfg and prepares the slots. With no direct target the
// measurement is abandoned: the coordinator is complete on return, never
// fetches and never reports. Otherwise Start is subscribed to the host's
// ready event when deps.Events is set.
func New(cfg Config, deps Deps) *Coordinator {
	c := &Coordinator{
		fetcher:  deps.Fetcher,
		reporter: deps.Reporter,
		log:      deps.Logger,
		done:     make(chan struct{}),
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}

	direct := NewTarget(cfg.DirectTarget, cfg.Timeout, cfg.Secure)
	if direct.Empty() {
		c.log.Warn("direct target is not set, cannot run IPv6 test")
		c.complete.Store(true)
		close(c.done)
		return c
	}
	c.slots[Direct].target = direct

	resolved := NewTarget(cfg.ResolvedTarget, cfg.Timeout, cfg.Secure)
	if resolved.Empty() {
		c.log.Warn("resolved target is not set, skipping hostname test")
	}
	c.slots[Resolved].target = resolved

	if deps.Events != nil {
		deps.Events.Subscribe(lifecycle.EventReady, c.Start)
	}
	return c
}

// Target returns the effective target of a slot.
func (c *Coordinator) Target(s Slot) Target {
	if !s.valid() {
		return Target{}
	}
	return c.slots[s].target
}

// Start issues one fetch per configured slot and returns immediately.
// Calls after the first, or on an abandoned coordinator, do nothing.
//
// Fetches and the report run detached from ctx cancellation; each fetch
// ends only through its target timeout.
func (c *Coordinator) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	if c.started || c.complete.Load() {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx = ctx

	var launch []Slot
	for s := Direct; s < slotCount; s++ {
		if c.slots[s].target.Empty() {
			continue
		}
		c.slots[s].result.State = Pending
		launch = append(launch, s)
	}
	c.mu.Unlock()

	for _, s := range launch {
		t := c.slots[s].target
		c.log.Debug("probe started", zap.Stringer("slot", s), zap.String("url", t.URL()), zap.Duration("timeout", t.Timeout()))
		go func(s Slot, t Target) {
			if c.fetcher == nil {
				c.OnProbeOutcome(s, Outcome{Err: errNoFetcher})
				return
			}
			c.OnProbeOutcome(s, c.fetcher.Fetch(ctx, t))
		}(s, t)
	}
}

// OnProbeOutcome records the first terminal outcome of a pending slot.
// Outcomes for skipped slots, repeated outcomes and anything arriving after
// completion are dropped.
func (c *Coordinator) OnProbeOutcome(s Slot, out Outcome) {
	if !s.valid() {
		return
	}

	c.mu.Lock()
	st := &c.slots[s]
	if c.emitted || st.result.State != Pending {
		c.mu.Unlock()
		c.log.Debug("ignoring probe outcome", zap.Stringer("slot", s), zap.Bool("complete", c.complete.Load()))
		return
	}
	st.result = Result{State: Settled, Outcome: out}
	c.log.Debug("probe settled",
		zap.Stringer("slot", s),
		zap.Bool("success", out.Success),
		zap.Bool("timed_out", out.TimedOut),
		zap.Duration("elapsed", out.Elapsed),
		zap.Error(out.Err),
	)

	if !c.doneLocked() {
		c.mu.Unlock()
		return
	}
	c.emitted = true
	m := model.Measurement{
		Timestamp: time.Now().UTC(),
		Direct:    Classify(c.slots[Direct].result),
		Resolved:  Classify(c.slots[Resolved].result),
	}
	c.record = &m
	ctx := c.ctx
	c.mu.Unlock()

	c.emit(ctx, m)
}

// doneLocked reports whether every slot with a target has settled.
func (c *Coordinator) doneLocked() bool {
	for s := Direct; s < slotCount; s++ {
		if c.slots[s].target.Empty() {
			continue
		}
		if c.slots[s].result.State != Settled {
			return false
		}
	}
	return true
}

func (c *Coordinator) emit(ctx context.Context, m model.Measurement) {
	defer close(c.done)

	c.complete.Store(true)
	c.log.Info("ipv6 measurement complete",
		zap.Stringer(model.KeyLatency, m.Direct),
		zap.Stringer(model.KeyLookup, m.Resolved),
	)
	if c.reporter == nil {
		return
	}
	if err := c.reporter.Report(ctx, m); err != nil {
		c.log.Warn("report measurement failed", zap.Error(err))
	}
}

// IsComplete reports whether this coordinator will contribute no further data.
func (c *Coordinator) IsComplete() bool {
	return c.complete.Load()
}

// Done is closed once the coordinator is complete and its record, if any, has
// been handed to the reporter.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until Done or ctx is cancelled.
func (c *Coordinator) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the emitted record. ok is false until one has been emitted,
// and stays false for an abandoned measurement.
func (c *Coordinator) Result() (m model.Measurement, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return model.Measurement{}, false
	}
	return *c.record, true
}

// SlotResult returns the current state of a slot.
func (c *Coordinator) SlotResult(s Slot) Result {
	if !s.valid() {
		return Result{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[s].result
}
