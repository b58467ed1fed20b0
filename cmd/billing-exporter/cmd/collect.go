package cmd

import (
	"context"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zgpcy/aws-billing-exporter/internal/aws"
	"github.com/zgpcy/aws-billing-exporter/internal/snapshot"
	"github.com/zgpcy/aws-billing-exporter/internal/version"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect AWS billing metrics and write the snapshot file",
	Long: `Query Cost Explorer, the CloudWatch AWS/Billing namespace and the
Budgets API, convert the responses to metrics and write them to the
snapshot file in the data directory.

Collection groups degrade independently: when one AWS API fails, the
snapshot still contains everything the other groups produced. The
command fails only when the AWS clients cannot be built or the snapshot
cannot be written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		return collectStage(cmd.Context(), rt)
	},
}

// collectStage runs collection and writes the snapshot. Shared by the
// collect and run commands.
func collectStage(ctx context.Context, rt *runtime) error {
	rt.log.Info("AWS billing collection starting",
		"version", version.Version,
		"region", rt.cfg.AWS.Region,
		"days_back", rt.cfg.Collection.DaysBack)

	collector, err := aws.NewCollector(ctx, rt.cfg, rt.log)
	if err != nil {
		rt.log.Error("Failed to initialize AWS clients", "error", err)
		return err
	}

	metrics := collector.Collect(ctx)

	path := filepath.Join(rt.cfg.DataDir, snapshot.MetricsFile)
	store := snapshot.New(rt.log)
	if err := store.Write(path, metrics); err != nil {
		rt.log.Error("Failed to write metrics snapshot", "path", path, "error", err)
		return err
	}

	rt.log.Info("Collection finished",
		"metrics", humanize.Comma(int64(len(metrics))),
		"snapshot", path)
	return nil
}
