package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/graph"
	"github.com/sheetflow/sheetflow/internal/logging"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Establish the delta checkpoint without processing anything",
	Long: `Warm runs one delta pass over the watched folder and persists the
resulting checkpoint without publishing anything. A later run then observes
only changes made after this point, regardless of INITIAL_MODE.

Useful before first deployment when the folder's existing contents are
already loaded by other means.`,
	Args: cobra.NoArgs,
	RunE: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)
}

func runWarm(cmd *cobra.Command, args []string) error {
	logger := logging.NewConsoleLogger(getVerboseFlag(cmd))
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Graph.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := buildTokenProvider(cfg.Graph, logger)
	if err != nil {
		return err
	}

	watcher := buildWatcher(cfg, graph.NewClient(tokens, logger), logger)
	if err := watcher.Warm(ctx); err != nil {
		return err
	}

	logger.Info("Checkpoint established; future runs observe only new changes")
	return nil
}
