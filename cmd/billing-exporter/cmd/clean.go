package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zgpcy/aws-billing-exporter/internal/gateway"
	"github.com/zgpcy/aws-billing-exporter/internal/logger"
)

// cleanCmd represents the clean command
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete this exporter's metric group from the Pushgateway",
	Long: `Delete every metric the configured job and instance pushed to the
Pushgateway. Useful when decommissioning the exporter or clearing stale
data after renaming the job.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.New(cfg.LogLevel)

		if err := cfg.RequireGateway(); err != nil {
			log.Error("Cannot clean metrics", "error", err)
			return err
		}

		client := gateway.New(cfg.Gateway.URL, cfg.Gateway.Job, log)
		if err := client.Delete(cmd.Context(), cfg.Gateway.Instance); err != nil {
			log.Error("Failed to delete metric group",
				"job", cfg.Gateway.Job,
				"instance", cfg.Gateway.Instance,
				"error", err)
			return err
		}

		log.Info("Metric group deleted",
			"job", cfg.Gateway.Job,
			"instance", cfg.Gateway.Instance)
		return nil
	},
}
