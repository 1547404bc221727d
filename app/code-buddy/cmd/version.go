package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionInfo = struct {
	version   string
	gitCommit string
	buildTime string
}{"dev", "unknown", "unknown"}

// SetVersionInfo records the build metadata printed by the version command
func SetVersionInfo(version, gitCommit, buildTime string) {
	versionInfo.version = version
	versionInfo.gitCommit = gitCommit
	versionInfo.buildTime = buildTime
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "code-buddy %s (commit %s, built %s)\n",
			versionInfo.version, versionInfo.gitCommit, versionInfo.buildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
