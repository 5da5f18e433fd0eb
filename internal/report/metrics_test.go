package report

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"v6probe/internal/model"
)

func TestMetrics_Report(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	_ = m.Report(ctx, model.Measurement{Direct: model.Latency(85), Resolved: model.NotSupported()})
	_ = m.Report(ctx, model.Measurement{Direct: model.Latency(40), Resolved: model.NotAttempted()})

	if got := testutil.ToFloat64(m.measurements); got != 2 {
		t.Fatalf("measurements=%v", got)
	}
	if got := testutil.ToFloat64(m.latency.WithLabelValues("direct")); got != 40 {
		t.Fatalf("direct latency=%v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("direct", ResultMeasured)); got != 2 {
		t.Fatalf("direct measured=%v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("resolved", ResultNotSupported)); got != 1 {
		t.Fatalf("resolved not_supported=%v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("resolved", ResultNotAttempted)); got != 1 {
		t.Fatalf("resolved not_attempted=%v", got)
	}
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
