// Package aws collects billing data from AWS and converts it into metrics.
//
// This package implements a collector that queries three AWS services and
// turns the responses into structured metric data points. It handles:
//   - Daily blended and unblended cost by service from Cost Explorer
//   - Account-wide and per-service estimated charges from the CloudWatch
//     AWS/Billing namespace
//   - Budget limits, actual spend, forecasted spend and utilization from
//     the Budgets API
//   - Credential resolution through the AWS default chain
//   - Per-call timeout handling for API requests
//
// The main types are:
//   - Collector: runs the collection groups and aggregates their metrics
//   - CostExplorerAPI, CloudWatchAPI, BudgetsAPI: service interfaces
//     (useful for testing)
//
// Collection groups are isolated from each other. A Cost Explorer outage
// does not prevent CloudWatch or budget metrics from being collected; the
// failing group is logged and the run continues with partial data. Budget
// collection requires an account ID and is skipped with a warning when
// none is configured.
//
// Example usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	collector, err := aws.NewCollector(context.Background(), cfg, logger.New("info"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	metrics := collector.Collect(context.Background())
//	for _, m := range metrics {
//		fmt.Printf("%s{service=%q} %f\n", m.Name, m.Labels["service"], m.Value)
//	}
package aws
