// Package config provides configuration management for the AWS Billing Exporter.
//
// This package handles loading configuration from an optional YAML file,
// applying environment variable overrides, setting defaults, and validating
// the configuration. The file is optional so the exporter can run from
// environment variables alone, which is how it is deployed in CI.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (highest priority)
//  2. YAML configuration file
//  3. Default values (lowest priority)
//
// Supported environment variables:
//   - AWS_REGION: AWS region for API calls (default: us-east-1)
//   - AWS_ACCOUNT_ID: account ID; without it budget collection is skipped
//   - PROMETHEUS_PUSHGATEWAY_URL: Pushgateway base URL (required for push)
//   - PROMETHEUS_JOB_NAME: Pushgateway job name (default: aws-billing-collector)
//   - PROMETHEUS_INSTANCE_NAME: Pushgateway instance label (default: github-actions)
//   - BILLING_DAYS_BACK: trailing days for cost queries (default: 2)
//   - BILLING_SUPPRESS_NON_POSITIVE: drop zero/negative cost-by-service values (default: true)
//   - BILLING_DATA_DIR: directory for snapshot and summary files (default: data)
//   - BILLING_LOG_DIR: directory for log files (default: logs)
//   - BILLING_LOG_LEVEL: log level (debug, info, warn, error)
//   - BILLING_API_TIMEOUT: AWS API timeout in seconds (default: 30)
//
// Example configuration file (config.yaml):
//
//	aws:
//	  region: "us-east-1"
//	  account_id: "123456789012"
//
//	gateway:
//	  url: "http://pushgateway:9091"
//	  job: "aws-billing-collector"
//	  instance: "github-actions"
//
//	collection:
//	  days_back: 2
//	  suppress_non_positive_cost: true
//
//	data_dir: "data"
//	log_dir: "logs"
//	log_level: "info"
//	api_timeout: 30
//
// Example usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//		log.Fatalf("Failed to load config: %v", err)
//	}
//
//	fmt.Printf("Region: %s\n", cfg.AWS.Region)
//	fmt.Printf("Querying last %d days\n", cfg.Collection.DaysBack)
package config
