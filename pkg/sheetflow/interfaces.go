package sheetflow

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenProvider abstracts bearer credential acquisition for the remote API.
// Implementations may involve an interactive out-of-band step (device code).
type TokenProvider interface {
	// GetToken acquires a bearer token for the remote API.
	// Returns the token and its expiry time. Failures wrap ErrAuth.
	GetToken(ctx context.Context) (token string, expiresOn time.Time, err error)

	// String returns a human-readable description for logging.
	// Must not include secrets.
	String() string
}

// Downloader streams remote content to a local path. Implementations must
// write to a scoped temporary path and atomically rename on completion, so a
// reader never observes a partially written file.
type Downloader interface {
	Fetch(ctx context.Context, sourceRef, localPath string) error
}

// WorkbookPlanner turns a downloaded workbook into per-sheet table plans.
// Only visible, non-empty sheets are included; an empty sheet list is a
// valid, non-error outcome.
type WorkbookPlanner interface {
	Plan(localPath string) (WorkbookPlan, error)
}

// CheckpointStore persists the opaque resume token for the change feed.
// Last writer wins; there are no merge semantics.
type CheckpointStore interface {
	// Read returns the stored token. ok is false when no checkpoint exists.
	Read() (token string, ok bool, err error)

	// Write replaces the stored token atomically.
	Write(token string) error
}

// ProcessedIndex is the dedup ledger: per item identity, the last published
// version fingerprint. Load and Save are explicit so a caller can batch
// several MarkProcessed calls and persist once.
type ProcessedIndex interface {
	// Load reads the durable document. A corrupt or missing file degrades
	// to an empty index with a logged warning, not an error.
	Load() error

	// Save persists the document with atomic file replacement.
	Save() error

	// IsProcessed reports whether the stored record for id matches etag
	// (preferred) or, absent a matching etag, lastModified.
	IsProcessed(id, etag, lastModified string) bool

	// MarkProcessed upserts the record unconditionally.
	MarkProcessed(id, etag, lastModified string)
}

// TablePublisher loads a table plan into a fresh physical table and
// atomically rebinds the plan's logical name onto it.
type TablePublisher interface {
	// Publish runs one publish attempt. On error the logical name is
	// untouched and the attempt's physical table has been dropped.
	// A non-nil result may still carry warnings from post-swap stages.
	Publish(ctx context.Context, plan TablePlan) (PublishResult, error)
}

// Connector is a unified interface for establishing database connections.
type Connector interface {
	// Connect establishes a connection pool to the database.
	// The returned pool should be closed by the caller when done.
	Connect(ctx context.Context) (*pgxpool.Pool, error)
}
