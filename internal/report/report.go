// Package report holds the sinks a finished measurement is handed to.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"

	"v6probe/internal/model"
)

// Reporter receives one measurement per cycle. It matches probe.Reporter.
type Reporter interface {
	Report(ctx context.Context, m model.Measurement) error
}

// Func adapts a function to Reporter.
type Func func(ctx context.Context, m model.Measurement) error

func (f Func) Report(ctx context.Context, m model.Measurement) error { return f(ctx, m) }

// Multi hands each measurement to every sink, even when some fail.
type Multi []Reporter

func (ms Multi) Report(ctx context.Context, m model.Measurement) error {
	var err error
	for _, r := range ms {
		if r == nil {
			continue
		}
		err = multierr.Append(err, r.Report(ctx, m))
	}
	return err
}

// Latest remembers the most recent measurement.
type Latest struct {
	mu sync.RWMutex
	m  *model.Measurement
}

func (l *Latest) Report(_ context.Context, m model.Measurement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m = &m
	return nil
}

// Get returns the last measurement, if any.
func (l *Latest) Get() (model.Measurement, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.m == nil {
		return model.Measurement{}, false
	}
	return *l.m, true
}

// Writer prints measurements as JSON lines or as key=value text.
type Writer struct {
	W    io.Writer
	JSON bool
}

func (w Writer) Report(_ context.Context, m model.Measurement) error {
	if w.JSON {
		return json.NewEncoder(w.W).Encode(m)
	}
	_, err := fmt.Fprintf(w.W, "%s=%s %s=%s\n", model.KeyLatency, m.Direct, model.KeyLookup, m.Resolved)
	return err
}
