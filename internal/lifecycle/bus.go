// Package lifecycle is the in-process host that measurement plugins attach to.
//
// A Bus delivers host events (such as EventReady) to subscribed handlers, and a
// Gate is the shared completion barrier: the host may only ship its report once
// every registered plugin says it will contribute no further data.
package lifecycle

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Event names a host lifecycle event.
type Event string

// EventReady fires once the host session is ready for measurements to begin.
const EventReady Event = "ready"

// Handler is invoked for each published event it is subscribed to.
type Handler func(ctx context.Context)

// Subscriber is the part of a Bus a plugin needs.
type Subscriber interface {
	Subscribe(ev Event, h Handler)
}

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	log *zap.Logger

	mu       sync.Mutex
	handlers map[Event][]Handler
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log, handlers: make(map[Event][]Handler)}
}

func (b *Bus) Subscribe(ev Event, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[ev] = append(b.handlers[ev], h)
}

// Publish runs every handler for ev synchronously and returns how many ran.
func (b *Bus) Publish(ctx context.Context, ev Event) int {
	b.mu.Lock()
	hs := make([]Handler, len(b.handlers[ev]))
	copy(hs, b.handlers[ev])
	b.mu.Unlock()

	b.log.Debug("publish", zap.String("event", string(ev)), zap.Int("handlers", len(hs)))
	for _, h := range hs {
		h(ctx)
	}
	return len(hs)
}
