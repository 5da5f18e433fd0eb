package report

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"v6probe/internal/model"
)

const namespace = "v6probe"

// Result label values of the outcomes counter.
const (
	ResultNotAttempted = "not_attempted"
	ResultNotSupported = "not_supported"
	ResultMeasured     = "measured"
)

// Metrics exports measurements as Prometheus series.
type Metrics struct {
	latency      *prometheus.GaugeVec
	outcomes     *prometheus.CounterVec
	measurements prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_ms",
			Help:      "Latency of the last successful fetch per probe slot, in milliseconds.",
		}, []string{"slot"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Classified probe outcomes per slot.",
		}, []string{"slot", "result"}),
		measurements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_total",
			Help:      "Completed measurement cycles.",
		}),
	}
	for _, c := range []prometheus.Collector{m.latency, m.outcomes, m.measurements} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Report(_ context.Context, rec model.Measurement) error {
	m.measurements.Inc()
	m.observe("direct", rec.Direct)
	m.observe("resolved", rec.Resolved)
	return nil
}

func (m *Metrics) observe(slot string, v model.Value) {
	switch v.Kind {
	case model.Measured:
		m.latency.WithLabelValues(slot).Set(float64(v.Millis))
		m.outcomes.WithLabelValues(slot, ResultMeasured).Inc()
	case model.Unsupported:
		m.latency.DeleteLabelValues(slot)
		m.outcomes.WithLabelValues(slot, ResultNotSupported).Inc()
	default:
		m.latency.DeleteLabelValues(slot)
		m.outcomes.WithLabelValues(slot, ResultNotAttempted).Inc()
	}
}
