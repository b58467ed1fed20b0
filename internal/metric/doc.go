// Package metric defines the shared metric model used across the pipeline.
//
// A Metric is one named, labeled observation with a collection timestamp and
// an optional help text. The collector produces metrics, the snapshot store
// persists and reloads them, and the exposition formatter renders them as
// Prometheus gauges. Keeping the model in a leaf package lets every stage
// depend on it without depending on each other:
//
//	m := metric.New(
//		"aws_billing_blended_cost_usd",
//		42.17,
//		map[string]string{"service": "Amazon EC2", "currency": "USD"},
//		time.Now().UTC(),
//		"Blended cost per AWS service in USD",
//	)
//	if m.Valid() {
//		// emit
//	}
//
// Validity is intentionally minimal: a metric needs a name and a finite
// value. Everything else (identifier grammar, label escaping) is the
// exposition formatter's concern, applied at render time so that stored
// snapshots keep the original strings.
package metric
