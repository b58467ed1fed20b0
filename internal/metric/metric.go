package metric

import (
	"math"
	"time"
)

// Metric represents a single billing observation destined for the Pushgateway.
// Instances are created by the collector, persisted by the snapshot store and
// rendered by the exposition formatter; none of those stages mutates them.
type Metric struct {
	// Name is the metric family name. It must match the Prometheus
	// identifier grammar [a-zA-Z_:][a-zA-Z0-9_:]*; the exposition
	// formatter sanitizes names that do not.
	Name string

	// Value is the observed value. NaN and infinities are invalid and
	// are discarded before emission.
	Value float64

	// Labels is the label set for this instance. Label values are
	// free-form and are escaped at render time.
	Labels map[string]string

	// Timestamp is the wall-clock instant the observation was
	// materialized by the collector, not the billing-period boundary
	// (that is carried in the "date" label where applicable).
	Timestamp time.Time

	// Help is an optional description, emitted once per metric family.
	Help string
}

// New constructs a Metric with the given fields.
func New(name string, value float64, labels map[string]string, ts time.Time, help string) Metric {
	return Metric{
		Name:      name,
		Value:     value,
		Labels:    labels,
		Timestamp: ts,
		Help:      help,
	}
}

// Valid reports whether the metric can be emitted: it must have a name and
// a finite value.
func (m Metric) Valid() bool {
	if m.Name == "" {
		return false
	}
	return !math.IsNaN(m.Value) && !math.IsInf(m.Value, 0)
}

// CountByName returns the number of instances per metric family name,
// preserving nothing about order; callers use it for run summaries.
func CountByName(metrics []Metric) map[string]int {
	counts := make(map[string]int, len(metrics))
	for _, m := range metrics {
		counts[m.Name]++
	}
	return counts
}
