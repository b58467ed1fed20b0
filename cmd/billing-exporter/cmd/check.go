package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zgpcy/aws-billing-exporter/internal/checkup"
	"github.com/zgpcy/aws-billing-exporter/internal/logger"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate environment, AWS access and Pushgateway connectivity",
	Long: `Run the setup validation checks: required configuration, data and log
directories, AWS credentials and API permissions, and Pushgateway
health including a test push.

All checks run even when earlier ones fail, so one invocation reports
every problem. The command exits non-zero when any check failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		runner := checkup.NewRunner(cfg, logger.New(cfg.LogLevel))
		results := runner.RunAll(cmd.Context())

		fmt.Println()
		fmt.Println("Check results:")
		for _, res := range results {
			status := "PASS"
			if !res.OK {
				status = "FAIL"
			}
			fmt.Printf("  %-26s %-4s  %s\n", res.Name, status, res.Detail)
		}
		fmt.Println()

		if !checkup.AllPassed(results) {
			return fmt.Errorf("setup validation failed")
		}
		fmt.Println("All checks passed.")
		return nil
	},
}
