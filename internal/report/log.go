package report

import (
	"context"

	"go.uber.org/zap"

	"v6probe/internal/model"
)

// Log writes each measurement as one structured log line.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Report(_ context.Context, m model.Measurement) error {
	if l.Logger == nil {
		return nil
	}
	l.Logger.Info("ipv6 measurement",
		zap.Time("timestamp", m.Timestamp),
		zap.Stringer(model.KeyLatency, m.Direct),
		zap.Stringer(model.KeyLookup, m.Resolved),
	)
	return nil
}
