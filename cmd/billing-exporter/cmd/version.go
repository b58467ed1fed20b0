package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zgpcy/aws-billing-exporter/internal/version"
)

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}
