package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/logging"
	"github.com/sheetflow/sheetflow/internal/workbook"
)

var publishCmd = &cobra.Command{
	Use:   "publish <workbook_path>",
	Short: "Publish a local workbook once, without watching anything",
	Long: `Publish loads one local workbook file and publishes every visible
non-empty sheet as a versioned table, exactly as the watch loop would.

No Graph access and no checkpoint or processed-index state are involved;
only the database configuration is required. Intended for backfills and
for verifying configuration against a sample file.

Examples:
  sheetflow publish ./exports/budget.xlsx
  sheetflow publish -v ./exports/budget.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	logger := logging.NewConsoleLogger(getVerboseFlag(cmd))
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidatePublish(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	planner, err := workbook.NewPlanner(cfg.Planner, logger)
	if err != nil {
		return err
	}

	plan, err := planner.Plan(args[0])
	if err != nil {
		return err
	}
	if len(plan.Sheets) == 0 {
		logger.Warn("Workbook %s has no publishable sheets", args[0])
		return nil
	}

	publisher, closePool, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePool()

	for _, sheet := range plan.Sheets {
		result, err := publisher.Publish(ctx, sheet.Table)
		if err != nil {
			return fmt.Errorf("publish sheet %q: %w", sheet.SheetName, err)
		}
		fmt.Printf("%s: %d rows -> %s (%s)\n",
			sheet.SheetName, result.RowCount, result.LogicalName, result.PhysicalName)
	}
	return nil
}
