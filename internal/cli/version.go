package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionLine())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// versionLine renders the machine-parseable version line printed by both
// the version subcommand and the --version flag.
func versionLine() string {
	return fmt.Sprintf("sheetflow %s (%s, %s) %s/%s", version, commit, date, runtime.GOOS, runtime.GOARCH)
}
