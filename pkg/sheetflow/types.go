package sheetflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Fingerprint identifies one version of a remote item. The entity tag is the
// preferred discriminator; the last-modified timestamp is the fallback when
// either side of a comparison has no etag.
type Fingerprint struct {
	ETag         string
	LastModified string
}

// ChangeItem describes one changed workbook surfaced by the change feed.
// Immutable once produced. ID is stable across versions of the same remote
// object; the fingerprint changes when content changes.
//
// ChangeItem carries only serializable data. Content retrieval goes through
// a separately injected Downloader bound at call time, keeping the record
// testable without a live capability.
type ChangeItem struct {
	// ID is the opaque remote identity.
	ID string

	// Name is the display name (the remote file name).
	Name string

	// Fingerprint is the (etag, last-modified) version pair.
	Fingerprint Fingerprint

	// SourceRef references the item's content for the Downloader.
	SourceRef string
}

// RowSource produces the rows of a table plan, aligned to its column list.
// Sources are consumed once; they are not restartable.
type RowSource interface {
	// Next returns the next row. ok is false when the source is exhausted.
	Next() (row []string, ok bool, err error)
}

// TablePlan is the unit of work handed to the table publisher: a logical
// name, an ordered column list, and a row source. Read-only to the publisher.
type TablePlan struct {
	// LogicalName is the stable name readers query. The publisher derives
	// physical names from it.
	LogicalName string

	// Columns is the ordered list of column names. Unique after case
	// normalization.
	Columns []string

	// Rows produces string tuples aligned to Columns.
	Rows RowSource
}

// Validate checks structural constraints the publisher relies on.
// Returns a multi-error wrapping ErrPlanInvalid on failure.
func (p *TablePlan) Validate() error {
	var errs []error

	if strings.TrimSpace(p.LogicalName) == "" {
		errs = append(errs, fmt.Errorf("logical name is required: %w", ErrPlanInvalid))
	}
	if len(p.Columns) == 0 {
		errs = append(errs, fmt.Errorf("at least one column is required: %w", ErrPlanInvalid))
	}
	if p.Rows == nil {
		errs = append(errs, fmt.Errorf("row source is required: %w", ErrPlanInvalid))
	}

	seen := make(map[string]struct{}, len(p.Columns))
	for _, c := range p.Columns {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" {
			errs = append(errs, fmt.Errorf("empty column name: %w", ErrPlanInvalid))
			continue
		}
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("duplicate column %q after case normalization: %w", c, ErrPlanInvalid))
		}
		seen[key] = struct{}{}
	}

	return errors.Join(errs...)
}

// SheetPlan is one sheet of a workbook, ready to publish.
type SheetPlan struct {
	// SheetName is the sheet's name inside the workbook.
	SheetName string

	// Table is the publishable plan derived from the sheet.
	Table TablePlan
}

// WorkbookPlan is the planner's output for one downloaded workbook.
// An empty Sheets list is a valid, non-error outcome.
type WorkbookPlan struct {
	// DatasetKey groups local processed copies of this workbook.
	DatasetKey string

	// Sheets holds one plan per visible, non-empty sheet.
	Sheets []SheetPlan
}

// SwapMode selects the mechanism that rebinds a logical name to a new
// physical table.
type SwapMode int

const (
	// SwapModeView rebinds via a plain view recreated transactionally.
	// Privileges are granted on the logical name.
	SwapModeView SwapMode = iota

	// SwapModeSynonym rebinds via a security-invoker view, which carries no
	// privileges of its own. Grants must land on the underlying physical
	// table instead.
	SwapModeSynonym
)

// ParseSwapMode parses a configuration string into a SwapMode.
func ParseSwapMode(s string) (SwapMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "view":
		return SwapModeView, nil
	case "synonym":
		return SwapModeSynonym, nil
	default:
		return SwapModeView, fmt.Errorf("unknown swap mode %q: %w", s, ErrInvalidConfig)
	}
}

func (m SwapMode) String() string {
	switch m {
	case SwapModeSynonym:
		return "synonym"
	default:
		return "view"
	}
}

// OverflowPolicy controls what happens to cell values longer than the
// configured field width.
type OverflowPolicy int

const (
	// OverflowTruncate silently truncates over-length values.
	OverflowTruncate OverflowPolicy = iota

	// OverflowError fails the sheet with ErrFieldOverflow.
	OverflowError
)

// ParseOverflowPolicy parses a configuration string into an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "truncate":
		return OverflowTruncate, nil
	case "error":
		return OverflowError, nil
	default:
		return OverflowTruncate, fmt.Errorf("unknown overflow policy %q: %w", s, ErrInvalidConfig)
	}
}

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowError:
		return "error"
	default:
		return "truncate"
	}
}

// InitialMode controls what the watcher does with items already present in
// the folder when no checkpoint exists.
type InitialMode int

const (
	// ModeProcessExisting emits a full snapshot of current items before
	// entering the continuous delta loop.
	ModeProcessExisting InitialMode = iota

	// ModeIgnoreExisting warms the delta checkpoint without emitting, so
	// only future changes are observed.
	ModeIgnoreExisting
)

// ParseInitialMode parses a configuration string into an InitialMode.
func ParseInitialMode(s string) (InitialMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "process-existing", "process_existing":
		return ModeProcessExisting, nil
	case "ignore-existing", "ignore_existing":
		return ModeIgnoreExisting, nil
	default:
		return ModeProcessExisting, fmt.Errorf("unknown initial mode %q: %w", s, ErrInvalidConfig)
	}
}

func (m InitialMode) String() string {
	switch m {
	case ModeIgnoreExisting:
		return "ignore-existing"
	default:
		return "process-existing"
	}
}

// PublisherConfig contains the knobs for the versioned table publisher.
type PublisherConfig struct {
	// SwapMode selects the logical-name rebinding mechanism.
	SwapMode SwapMode

	// IdentMax is the store's identifier length limit.
	IdentMax int

	// FieldWidth is the declared width of every text column.
	FieldWidth int

	// GrantTo lists roles granted SELECT after each swap. May be empty.
	GrantTo []string

	// RetainVersions is the number of physical tables kept per logical
	// name after cleanup, counting the current one.
	RetainVersions int

	// BatchSize is the number of rows per INSERT inside the load
	// transaction.
	BatchSize int
}

// Validate checks the PublisherConfig for invalid values.
func (c *PublisherConfig) Validate() error {
	var errs []error

	if c.IdentMax < MinIdentMax {
		errs = append(errs, fmt.Errorf("identifier limit %d cannot fit versioned names (minimum %d): %w", c.IdentMax, MinIdentMax, ErrInvalidConfig))
	}
	if c.FieldWidth <= 0 {
		errs = append(errs, fmt.Errorf("field width must be positive: %w", ErrInvalidConfig))
	}
	if c.RetainVersions < 1 {
		errs = append(errs, fmt.Errorf("retention count must be at least 1: %w", ErrInvalidConfig))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be at least 1: %w", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// ConnectionConfig represents parsed database connection parameters.
type ConnectionConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	// AppName is reported as application_name to the server.
	AppName        string
	ConnectTimeout time.Duration
}

// Validate checks the ConnectionConfig for required fields.
func (c *ConnectionConfig) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, fmt.Errorf("database host is required: %w", ErrInvalidConfig))
	}
	if c.Database == "" {
		errs = append(errs, fmt.Errorf("database name is required: %w", ErrInvalidConfig))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("database port %d is out of range: %w", c.Port, ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// PublishWarning records a non-fatal failure from a post-swap stage.
// The new version is already authoritative when one of these is produced;
// distinguishing them from fatal errors is the point of the type.
type PublishWarning struct {
	// Stage is the publish stage that produced the warning ("grant" or
	// "cleanup").
	Stage string

	// Err is the underlying failure.
	Err error
}

func (w PublishWarning) String() string {
	return fmt.Sprintf("%s: %v", w.Stage, w.Err)
}

// PublishResult reports a successful publish attempt.
type PublishResult struct {
	// LogicalName is the sanitized logical name readers query.
	LogicalName string

	// PhysicalName is the versioned table the logical name now points at.
	PhysicalName string

	// RowCount is the number of rows loaded.
	RowCount int

	// Warnings holds non-fatal post-swap failures (grant, cleanup).
	Warnings []PublishWarning
}
