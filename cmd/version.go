package cmd

import (
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information.",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("faultline %s (commit %s, built %s, %s)\n", version, commit, date, runtime.Version())
	},
}
