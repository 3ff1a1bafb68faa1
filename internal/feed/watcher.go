// Package feed turns the paginated Graph listing/delta API into a resumable
// stream of changed workbook items.
//
// Checkpoint discipline: one delta pass follows every next-page cursor to
// exhaustion, remembering only the last terminal cursor seen; that cursor is
// persisted once, after the pass completes. A failure mid-pass advances
// nothing, so a restart re-observes the whole pass. Delivery is therefore
// at-least-once, never at-most-once.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sheetflow/sheetflow/internal/graph"
	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

// PageFetcher retrieves one listing or delta page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (graph.Page, error)
}

// YieldFunc receives changed items as a pass produces them. Returning an
// error stops iteration and propagates to the caller.
type YieldFunc func(sheetflow.ChangeItem) error

// workbookExtensions are the file extensions surfaced by the feed.
// Everything else is filtered out silently.
var workbookExtensions = []string{".xlsx", ".xlsm"}

// Watcher drives listing and delta traversals for one watched folder.
// Not safe for concurrent passes; the ingest loop is the only driver.
type Watcher struct {
	fetcher     PageFetcher
	drive       graph.Drive
	checkpoints sheetflow.CheckpointStore
	logger      sheetflow.Logger
}

// NewWatcher creates a Watcher. Panics if any dependency is nil.
func NewWatcher(fetcher PageFetcher, drive graph.Drive, checkpoints sheetflow.CheckpointStore, logger sheetflow.Logger) *Watcher {
	if fetcher == nil {
		panic("fetcher cannot be nil")
	}
	if checkpoints == nil {
		panic("checkpoints cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Watcher{
		fetcher:     fetcher,
		drive:       drive,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// ListAll performs a single full pass over current folder contents and
// yields every workbook item. It never touches the checkpoint.
func (w *Watcher) ListAll(ctx context.Context, yield YieldFunc) error {
	_, err := w.traverse(ctx, w.drive.ChildrenURL(), yield)
	return err
}

// ChangesSince performs one delta pass: from the stored checkpoint when one
// exists, otherwise from the folder root. The terminal cursor is persisted
// only after the pass fully exhausts.
func (w *Watcher) ChangesSince(ctx context.Context, yield YieldFunc) error {
	return w.deltaPass(ctx, yield)
}

// Warm executes one delta pass from the folder root without surfacing any
// items, establishing "now" as the baseline for future change detection.
func (w *Watcher) Warm(ctx context.Context) error {
	terminal, err := w.traverse(ctx, w.drive.DeltaURL(), nil)
	if err != nil {
		return err
	}
	if terminal == "" {
		return nil
	}
	if err := w.checkpoints.Write(terminal); err != nil {
		return fmt.Errorf("persist warm checkpoint: %w", err)
	}
	w.logger.Verbose("Delta checkpoint warmed")
	return nil
}

// Watch repeats delta passes forever, sleeping pollInterval between
// exhausted passes. A failed pass is logged and retried on the next cycle;
// the checkpoint has not advanced, so nothing is lost. Watch returns when
// ctx is cancelled, when yield reports an error, or when a pass fails with
// a credential error: a revoked or expired credential will not heal on its
// own, so it must stop the process instead of burning retry cycles.
func (w *Watcher) Watch(ctx context.Context, pollInterval time.Duration, yield YieldFunc) error {
	for {
		if err := w.deltaPass(ctx, yield); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if yieldStopped(err) || errors.Is(err, sheetflow.ErrAuth) {
				return err
			}
			w.logger.Warn("Delta pass failed, retrying next cycle: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Run performs the configured startup behavior, then watches continuously.
// ModeProcessExisting emits a full snapshot first; ModeIgnoreExisting warms
// the checkpoint (when none exists) so only future changes surface.
func (w *Watcher) Run(ctx context.Context, mode sheetflow.InitialMode, pollInterval time.Duration, yield YieldFunc) error {
	_, hasCheckpoint, err := w.checkpoints.Read()
	if err != nil {
		return err
	}

	switch {
	case mode == sheetflow.ModeProcessExisting:
		w.logger.Info("Startup scan: enabled (%s)", mode)
		if err := w.ListAll(ctx, yield); err != nil {
			return err
		}
	case hasCheckpoint:
		w.logger.Info("Startup scan: skipped, resuming from checkpoint")
	default:
		w.logger.Info("Startup scan: disabled (%s), warming checkpoint", mode)
		if err := w.Warm(ctx); err != nil {
			return err
		}
	}

	return w.Watch(ctx, pollInterval, yield)
}

// deltaPass runs one full delta traversal and persists its terminal cursor.
func (w *Watcher) deltaPass(ctx context.Context, yield YieldFunc) error {
	start := w.drive.DeltaURL()
	if token, ok, err := w.checkpoints.Read(); err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	} else if ok {
		start = token
	}

	terminal, err := w.traverse(ctx, start, yield)
	if err != nil {
		return err
	}
	if terminal == "" {
		return nil
	}
	if err := w.checkpoints.Write(terminal); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	return nil
}

// traverse is the explicit fold over pages: it follows every next-page
// cursor from start, yields matching items as they arrive (when yield is
// non-nil), and returns the last terminal cursor seen across the pass.
func (w *Watcher) traverse(ctx context.Context, start string, yield YieldFunc) (terminal string, err error) {
	cursor := start
	for cursor != "" {
		page, err := w.fetcher.FetchPage(ctx, cursor)
		if err != nil {
			return "", err
		}

		if yield != nil {
			for i := range page.Items {
				item, ok := w.toChangeItem(&page.Items[i])
				if !ok {
					continue
				}
				if err := yield(item); err != nil {
					return "", &stopError{cause: err}
				}
			}
		}

		if page.TerminalCursor != "" {
			terminal = page.TerminalCursor
		}
		cursor = page.NextCursor
	}
	return terminal, nil
}

// toChangeItem converts a descriptor, filtering out folders and non-workbook
// files.
func (w *Watcher) toChangeItem(d *graph.ItemDescriptor) (sheetflow.ChangeItem, bool) {
	if !d.IsFile() || !isWorkbook(d.Name) {
		return sheetflow.ChangeItem{}, false
	}
	return sheetflow.ChangeItem{
		ID:   d.ID,
		Name: d.Name,
		Fingerprint: sheetflow.Fingerprint{
			ETag:         d.ETag,
			LastModified: d.FileSystemInfo.LastModifiedDateTime,
		},
		SourceRef: w.drive.ContentRef(d.ID),
	}, true
}

func isWorkbook(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range workbookExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// stopError marks an error raised by the caller's yield function, as opposed
// to a feed failure. Watch propagates these instead of retrying.
type stopError struct {
	cause error
}

func (e *stopError) Error() string { return e.cause.Error() }
func (e *stopError) Unwrap() error { return e.cause }

func yieldStopped(err error) bool {
	var s *stopError
	return errors.As(err, &s)
}
