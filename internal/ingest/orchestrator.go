// Package ingest coordinates the per-item pipeline: dedup check, download,
// plan, publish, record, and local processed-copy management.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sheetflow/sheetflow/internal/checksum"
	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

// Config contains the orchestrator's filesystem layout.
type Config struct {
	// LandingDir receives downloaded workbooks awaiting processing.
	LandingDir string

	// ProcessedDir receives per-dataset copies of successfully processed
	// workbooks.
	ProcessedDir string

	// KeepHistory additionally retains a timestamped copy per processed
	// version, alongside the rolling latest copy.
	KeepHistory bool
}

// Validate checks the Config for required fields.
func (c *Config) Validate() error {
	var errs []error

	if c.LandingDir == "" {
		errs = append(errs, fmt.Errorf("landing directory is required: %w", sheetflow.ErrInvalidConfig))
	}
	if c.ProcessedDir == "" {
		errs = append(errs, fmt.Errorf("processed directory is required: %w", sheetflow.ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// Orchestrator processes changed workbook items end to end. Failures on one
// item never affect others; an item that fails is simply not recorded as
// processed, so a later pass retries it.
type Orchestrator struct {
	downloader sheetflow.Downloader
	planner    sheetflow.WorkbookPlanner
	publisher  sheetflow.TablePublisher
	index      sheetflow.ProcessedIndex
	cfg        Config
	logger     sheetflow.Logger
	clock      func() time.Time
}

// NewOrchestrator creates an Orchestrator. Panics if any dependency is nil;
// returns an error for invalid configuration.
func NewOrchestrator(
	downloader sheetflow.Downloader,
	planner sheetflow.WorkbookPlanner,
	publisher sheetflow.TablePublisher,
	index sheetflow.ProcessedIndex,
	cfg Config,
	logger sheetflow.Logger,
) (*Orchestrator, error) {
	if downloader == nil {
		panic("downloader cannot be nil")
	}
	if planner == nil {
		panic("planner cannot be nil")
	}
	if publisher == nil {
		panic("publisher cannot be nil")
	}
	if index == nil {
		panic("index cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Orchestrator{
		downloader: downloader,
		planner:    planner,
		publisher:  publisher,
		index:      index,
		cfg:        cfg,
		logger:     logger,
		clock:      time.Now,
	}, nil
}

// WithClock returns a copy of the Orchestrator using the given time source.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	clone := *o
	clone.clock = clock
	return &clone
}

// Handler adapts ProcessItem for a change feed: item failures are logged
// and swallowed so the feed keeps running, while context cancellation and
// credential failures propagate and stop it. A dead credential fails every
// subsequent item the same way, so it is not a per-item condition.
func (o *Orchestrator) Handler(ctx context.Context) func(sheetflow.ChangeItem) error {
	return func(item sheetflow.ChangeItem) error {
		err := o.ProcessItem(ctx, item)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, sheetflow.ErrAuth) {
			return fmt.Errorf("processing %s: %w", item.Name, err)
		}
		o.logger.Error("Processing %s (%s) failed: %v", item.Name, item.ID, err)
		return nil
	}
}

// ProcessItem runs the full pipeline for one changed item. Already-published
// versions are skipped. The item is recorded as processed only after every
// sheet published; a mid-item failure leaves the record untouched so the
// whole item is retried later (publishing is idempotent per sheet).
func (o *Orchestrator) ProcessItem(ctx context.Context, item sheetflow.ChangeItem) error {
	if o.index.IsProcessed(item.ID, item.Fingerprint.ETag, item.Fingerprint.LastModified) {
		o.logger.Verbose("Skipping %s: this version is already published", item.Name)
		return nil
	}

	o.logger.Info("Processing %s", item.Name)

	localPath, err := o.download(ctx, item)
	if err != nil {
		return err
	}

	plan, err := o.planner.Plan(localPath)
	if err != nil {
		return fmt.Errorf("plan workbook %s: %w", item.Name, err)
	}

	if len(plan.Sheets) == 0 {
		o.logger.Warn("Workbook %s has no publishable sheets", item.Name)
	}
	for _, sheet := range plan.Sheets {
		result, err := o.publisher.Publish(ctx, sheet.Table)
		if err != nil {
			return fmt.Errorf("publish sheet %q of %s: %w", sheet.SheetName, item.Name, err)
		}
		o.logger.Info("Published %s: %d rows as %s", sheet.SheetName, result.RowCount, result.LogicalName)
	}

	o.index.MarkProcessed(item.ID, item.Fingerprint.ETag, item.Fingerprint.LastModified)
	if err := o.index.Save(); err != nil {
		return fmt.Errorf("record %s as processed: %w", item.Name, err)
	}

	// Best effort from here: the publish is already recorded.
	if err := o.copyProcessed(localPath, plan.DatasetKey); err != nil {
		o.logger.Warn("Could not copy processed workbook %s: %v", item.Name, err)
	}
	if err := os.Remove(localPath); err != nil {
		o.logger.Warn("Could not remove landing file %s: %v", localPath, err)
	}

	return nil
}

// download fetches the item's content into the landing directory under its
// remote file name.
func (o *Orchestrator) download(ctx context.Context, item sheetflow.ChangeItem) (string, error) {
	if err := os.MkdirAll(o.cfg.LandingDir, 0o755); err != nil {
		return "", fmt.Errorf("create landing directory: %w", err)
	}

	localPath := filepath.Join(o.cfg.LandingDir, filepath.Base(item.Name))
	if err := o.downloader.Fetch(ctx, item.SourceRef, localPath); err != nil {
		return "", fmt.Errorf("download %s: %w", item.Name, err)
	}

	if sum, err := checksum.New().CalculateFile(localPath); err == nil {
		o.logger.Verbose("Downloaded %s (sha256 %s)", item.Name, sum)
	}
	return localPath, nil
}
