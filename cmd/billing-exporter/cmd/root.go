// Package cmd provides the CLI commands for billing-exporter.
package cmd

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zgpcy/aws-billing-exporter/internal/clock"
	"github.com/zgpcy/aws-billing-exporter/internal/config"
	"github.com/zgpcy/aws-billing-exporter/internal/logger"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "billing-exporter",
	Short: "Collect AWS billing data and push it to a Prometheus Pushgateway",
	Long: `billing-exporter reads cost data from AWS Cost Explorer, the CloudWatch
AWS/Billing namespace and the Budgets API, snapshots it as JSON and
delivers it to a Prometheus Pushgateway in text exposition format.

It is designed to run as a scheduled batch job; each pipeline stage can
also run on its own for debugging.

Examples:
  billing-exporter run
  billing-exporter collect --config config.yaml
  billing-exporter push
  billing-exporter check`,
	SilenceUsage: true,
}

// ExecuteContext runs the CLI under the given context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file (optional, environment variables alone work)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)
}

// runtime bundles what every pipeline stage needs: loaded configuration,
// a logger teed to the run's log file and a run ID tying the log lines,
// snapshot and summary of one invocation together.
type runtime struct {
	cfg   *config.Config
	log   *logger.Logger
	clock clock.Clock
	runID string
	close func() error
}

// newRuntime loads configuration and opens the tee logger. The caller
// must defer rt.close.
func newRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	clk := clock.RealClock{}
	log, closeLog, err := logger.NewTee(cfg.LogLevel, cfg.LogDir, clk.Now())
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	return &runtime{
		cfg:   cfg,
		log:   log.WithFields("run_id", runID),
		clock: clk,
		runID: runID,
		close: closeLog,
	}, nil
}

// loadConfig reads the optional config file and applies the log level
// flag on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}
