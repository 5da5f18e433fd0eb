package lifecycle

import (
	"context"
	"sort"
	"sync"
)

// Completer is implemented by anything that holds the completion gate.
type Completer interface {
	IsComplete() bool
	Done() <-chan struct{}
}

// Gate opens once every registered Completer is complete.
type Gate struct {
	mu      sync.RWMutex
	members map[string]Completer
}

func NewGate() *Gate {
	return &Gate{members: make(map[string]Completer)}
}

// Register adds c under name, replacing any previous member with that name.
func (g *Gate) Register(name string, c Completer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[name] = c
}

// Open reports whether every member is complete. An empty gate is open.
func (g *Gate) Open() bool {
	return len(g.Pending()) == 0
}

// Pending returns the sorted names of members that are not complete yet.
func (g *Gate) Pending() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var names []string
	for name, c := range g.members {
		if !c.IsComplete() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Wait blocks until every member is done or ctx is cancelled.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.RLock()
	signals := make([]<-chan struct{}, 0, len(g.members))
	for _, c := range g.members {
		signals = append(signals, c.Done())
	}
	g.mu.RUnlock()

	for _, ch := range signals {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
