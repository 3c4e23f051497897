package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, set at build time with ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, styleTitle.Render("skin-check"))
		fmt.Fprintln(out, renderKeyValue("Version", Version))
		fmt.Fprintln(out, renderKeyValue("Commit", GitCommit))
		fmt.Fprintln(out, renderKeyValue("Build Date", BuildDate))
	},
}
