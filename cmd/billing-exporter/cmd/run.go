package cmd

import (
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect and push in one invocation",
	Long: `Run the full pipeline: collect AWS billing metrics, write the
snapshot, then push it to the Pushgateway and write the run summary.

This is the entry point for scheduled jobs. The snapshot file is still
written between the stages, so a failed push can be retried later with
the push command without collecting again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		if err := collectStage(cmd.Context(), rt); err != nil {
			return err
		}
		return pushStage(cmd.Context(), rt)
	},
}
