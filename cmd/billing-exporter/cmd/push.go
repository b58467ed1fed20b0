package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zgpcy/aws-billing-exporter/internal/gateway"
	"github.com/zgpcy/aws-billing-exporter/internal/snapshot"
)

// pushCmd represents the push command
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the collected snapshot to the Prometheus Pushgateway",
	Long: `Read the metrics snapshot from the data directory and deliver it to
the configured Pushgateway, batch first with a per-metric fallback. A
push summary is written next to the snapshot for audit.

A missing or empty snapshot is a successful no-op. The command fails
when metrics were read but none could be delivered.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		return pushStage(cmd.Context(), rt)
	},
}

// pushStage reads the snapshot, delivers it and writes the run summary.
// Shared by the push and run commands.
func pushStage(ctx context.Context, rt *runtime) error {
	if err := rt.cfg.RequireGateway(); err != nil {
		rt.log.Error("Cannot push metrics", "error", err)
		return err
	}

	path := filepath.Join(rt.cfg.DataDir, snapshot.MetricsFile)
	store := snapshot.New(rt.log)
	metrics := store.Read(path)

	client := gateway.New(rt.cfg.Gateway.URL, rt.cfg.Gateway.Job, rt.log)

	// Advisory only; an unreachable health endpoint must not stop the push
	if err := client.HealthCheck(ctx); err != nil {
		rt.log.Warn("Pushgateway health check failed, pushing anyway", "error", err)
	}

	result := client.PushWithFallback(ctx, metrics, rt.cfg.Gateway.Instance)

	summary := gateway.Summary{
		Timestamp:    rt.clock.Now().UTC(),
		RunID:        rt.runID,
		TotalMetrics: len(metrics),
		GatewayURL:   rt.cfg.Gateway.URL,
		JobName:      rt.cfg.Gateway.Job,
		InstanceName: rt.cfg.Gateway.Instance,
		Status:       result.Status,
	}
	summaryPath := filepath.Join(rt.cfg.DataDir, gateway.SummaryFile)
	if err := summary.Write(summaryPath); err != nil {
		rt.log.Error("Failed to write push summary", "path", summaryPath, "error", err)
		return err
	}

	if result.Status == gateway.StatusFailed {
		rt.log.Error("Push failed",
			"attempted", result.Attempted,
			"delivered", result.Delivered,
			"summary", summaryPath)
		return fmt.Errorf("delivered %d of %d metrics", result.Delivered, result.Attempted)
	}

	rt.log.Info("Push finished",
		"attempted", humanize.Comma(int64(result.Attempted)),
		"delivered", humanize.Comma(int64(result.Delivered)),
		"summary", summaryPath)
	return nil
}
