package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/graph"
	"github.com/sheetflow/sheetflow/internal/ingest"
	"github.com/sheetflow/sheetflow/internal/logging"
	"github.com/sheetflow/sheetflow/internal/state"
	"github.com/sheetflow/sheetflow/internal/workbook"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the remote folder and publish changed workbooks",
	Long: `Run starts the continuous ingest loop: poll the Microsoft Graph delta
API for the watched folder, download each changed workbook, and publish
every visible non-empty sheet as a versioned table behind a stable logical
name.

The loop stops on SIGINT or SIGTERM. Change detection resumes from the
persisted delta checkpoint, so restarts never lose changes; a workbook
version is recorded as processed only after all of its sheets published.

Required environment variables:
  TENANT_ID, CLIENT_ID        Entra ID application identity
  SP_DRIVE_ID                 Drive containing the watched folder
  SP_FOLDER_ITEM_ID           Item id of the watched folder
  PGHOST, PGDATABASE, PGUSER  Target PostgreSQL database

Optional:
  CLIENT_SECRET               Unattended auth (default: device-code flow)
  GRAPH_AUTH                  "default" for the Azure default credential chain
  PGPASSWORD, PGPORT, PGSSLMODE, PGAPPNAME, PGCONNECT_TIMEOUT
  POLL_SECONDS                Delta poll interval (default 30)
  INITIAL_MODE                process_existing | ignore_existing
  SWAP_MODE                   view | synonym
  IDENT_MAX, FIELD_WIDTH, GRANT_TO, RETAIN_VERSIONS, LOAD_BATCH_SIZE
  TRUNCATE_OVERFLOW           truncate | error
  STATE_DIR, LANDING_DIR, PROCESSED_DIR, KEEP_PROCESSED_HISTORY`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := logging.NewConsoleLogger(getVerboseFlag(cmd))
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := buildTokenProvider(cfg.Graph, logger)
	if err != nil {
		return err
	}
	logger.Verbose("Using credential: %s", tokens)

	client := graph.NewClient(tokens, logger)
	watcher := buildWatcher(cfg, client, logger)

	publisher, closePool, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePool()

	planner, err := workbook.NewPlanner(cfg.Planner, logger)
	if err != nil {
		return err
	}

	index := state.NewIndex(cfg.StateDir, logger)
	if err := index.Load(); err != nil {
		return err
	}

	orchestrator, err := ingest.NewOrchestrator(client, planner, publisher, index, cfg.Ingest, logger)
	if err != nil {
		return err
	}

	logger.Info("Watcher started (poll=%s, initial_mode=%s)", cfg.PollInterval, cfg.InitialMode)

	err = watcher.Run(ctx, cfg.InitialMode, cfg.PollInterval, orchestrator.Handler(ctx))
	if errors.Is(err, context.Canceled) {
		logger.Info("Shutting down")
		return nil
	}
	return err
}
