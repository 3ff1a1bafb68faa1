// Package cli wires the runtime together behind a small cobra surface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sheetflow",
	Short: "Publish remote workbooks as queryable database tables",
	Long: `sheetflow watches a SharePoint/OneDrive folder through the Microsoft
Graph delta API, downloads changed workbooks, and republishes every visible
sheet as a versioned table in PostgreSQL behind a stable logical name.

Readers always see either the previous table version or the new one in
full; the swap is atomic and partially loaded data is never visible.

Configuration comes from environment variables (a project .env file is
loaded when present). See the run command help for the variable list.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration
  11 - Database connection failed
  12 - Bearer credential acquisition failed
  13 - Row load failed and was rolled back
  14 - Workbook produced an unpublishable table plan`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionLine() + "\n")
	rootCmd.PersistentFlags().Bool("help", false, "Help for sheetflow")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}
