// Package gateway delivers rendered metrics to a Prometheus Pushgateway.
//
// The client speaks the Pushgateway HTTP protocol directly: POST of a text
// exposition payload to /metrics/job/<job>[/instance/<instance>], DELETE of
// the same grouping, and GET /-/healthy for liveness. Job and instance are
// path-escaped, so names with spaces or slashes are safe.
//
// Delivery is batch-first with a per-metric fallback:
//
//	result := client.PushWithFallback(ctx, metrics, instance)
//	if result.Status == gateway.StatusFailed {
//		// nothing was delivered
//	}
//
// The batch push sends everything in one request. If it fails for any
// reason the client retries each metric in its own request, pausing
// briefly every tenth push, and the run still counts as a success when at
// least one metric lands. An empty metric set succeeds without touching
// the network.
//
// Each delivery run produces a Summary, written as JSON next to the
// snapshot file, recording what was pushed where and whether it worked.
package gateway
