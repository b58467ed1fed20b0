// Package exposition renders metrics in the Prometheus text format 0.0.4.
//
// All metrics become gauges. Instances sharing a name form one family,
// rendered as an optional HELP/TYPE header followed by one sample line per
// instance:
//
//	# HELP aws_billing_blended_cost_usd AWS blended cost by service in USD
//	# TYPE aws_billing_blended_cost_usd gauge
//	aws_billing_blended_cost_usd{account_id="123",currency="USD",service="Amazon EC2"} 12.34
//
// Sanitization is applied at render time only: metric names keep
// [a-zA-Z0-9_:], label names keep [a-zA-Z0-9_], and label values get
// backslash and quote escaping. Stored snapshots keep the raw strings.
package exposition
