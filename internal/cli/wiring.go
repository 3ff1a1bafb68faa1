package cli

import (
	"context"
	"fmt"

	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/db"
	"github.com/sheetflow/sheetflow/internal/feed"
	"github.com/sheetflow/sheetflow/internal/graph"
	"github.com/sheetflow/sheetflow/internal/publish"
	"github.com/sheetflow/sheetflow/internal/state"
	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

// buildTokenProvider selects the credential flow: client secret when one is
// configured, interactive device code otherwise.
func buildTokenProvider(cfg config.GraphConfig, logger sheetflow.Logger) (sheetflow.TokenProvider, error) {
	if cfg.AuthMethod == "default" {
		return graph.NewDefaultCredentialProvider()
	}
	if cfg.ClientSecret != "" {
		return graph.NewClientSecretProvider(cfg.TenantID, cfg.ClientID, cfg.ClientSecret)
	}
	return graph.NewDeviceCodeProvider(cfg.TenantID, cfg.ClientID, logger)
}

// buildWatcher assembles the change feed over the configured drive folder.
func buildWatcher(cfg *config.Config, client *graph.Client, logger sheetflow.Logger) *feed.Watcher {
	drive := graph.NewDrive(cfg.Graph.DriveID, cfg.Graph.FolderItemID)
	if cfg.Graph.BaseURL != "" {
		drive = drive.WithBaseURL(cfg.Graph.BaseURL)
	}
	checkpoints := state.NewFileCheckpointStore(cfg.StateDir)
	return feed.NewWatcher(client, drive, checkpoints, logger)
}

// buildPublisher connects to PostgreSQL and wraps the pool in a publisher.
// The returned close function releases the pool.
func buildPublisher(ctx context.Context, cfg *config.Config, logger sheetflow.Logger) (*publish.Publisher, func(), error) {
	connector := db.NewStandardConnector(&cfg.Connection)
	pool, err := connector.Connect(ctx)
	if err != nil {
		return nil, nil, err
	}

	publisher, err := publish.NewPublisher(db.NewPoolAdapter(pool), cfg.Publisher, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("configure publisher: %w", err)
	}
	return publisher, pool.Close, nil
}
