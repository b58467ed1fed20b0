// Package checkup validates that the exporter's environment is usable
// before a real collection run.
//
// It runs four independent checks:
//   - Environment Variables: required and optional configuration is
//     present, with credential values masked in the output
//   - Data Directories: the data and log directories exist or can be
//     created
//   - AWS Connection: credentials resolve, and STS, CloudWatch Billing
//     and Cost Explorer answer the same calls the collector makes
//   - Prometheus Pushgateway: the gateway reports healthy, accepts a
//     probe metric under a dedicated job and allows deleting it
//
// Checks never stop each other; every run produces a full Result list so
// an operator sees all problems at once. The gateway health probe retries
// with exponential backoff, which covers gateways still starting up in CI.
package checkup
