package report

import (
	"math"
	"sort"
	"time"

	"v6probe/internal/model"
)

// SlotSummary aggregates one probe slot over a window.
type SlotSummary struct {
	Measured     int
	NotSupported int
	NotAttempted int
	AvgMs        float64
	P95Ms        float64
	MinMs        float64
	MaxMs        float64
}

// Summary is a statistics snapshot of stored measurements.
type Summary struct {
	Count    int
	From     time.Time
	To       time.Time
	Direct   SlotSummary
	Resolved SlotSummary
}

// Summarize computes per-slot statistics for items at or after since.
func Summarize(items []model.Measurement, since time.Time) Summary {
	filtered := make([]model.Measurement, 0, len(items))
	for _, m := range items {
		if !m.Timestamp.Before(since) {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		return Summary{}
	}

	from := filtered[0].Timestamp
	to := filtered[0].Timestamp
	direct := make([]model.Value, 0, len(filtered))
	resolved := make([]model.Value, 0, len(filtered))
	for _, m := range filtered {
		direct = append(direct, m.Direct)
		resolved = append(resolved, m.Resolved)
		if m.Timestamp.Before(from) {
			from = m.Timestamp
		}
		if m.Timestamp.After(to) {
			to = m.Timestamp
		}
	}

	return Summary{
		Count:    len(filtered),
		From:     from,
		To:       to,
		Direct:   summarizeSlot(direct),
		Resolved: summarizeSlot(resolved),
	}
}

func summarizeSlot(vals []model.Value) SlotSummary {
	var s SlotSummary
	latencies := make([]float64, 0, len(vals))
	var sum float64
	s.MinMs = math.MaxFloat64
	for _, v := range vals {
		switch v.Kind {
		case model.Measured:
			ms := float64(v.Millis)
			s.Measured++
			latencies = append(latencies, ms)
			sum += ms
			s.MinMs = math.Min(s.MinMs, ms)
			s.MaxMs = math.Max(s.MaxMs, ms)
		case model.Unsupported:
			s.NotSupported++
		default:
			s.NotAttempted++
		}
	}
	if s.Measured == 0 {
		s.MinMs = 0
		return s
	}
	sort.Float64s(latencies)
	s.AvgMs = sum / float64(s.Measured)
	s.P95Ms = percentile(latencies, 0.95)
	return s
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	return values[idx]
}
