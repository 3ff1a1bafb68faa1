package sheetflow

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Run completed successfully
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or parameters
	ExitConnectionError = 11 // Failed to connect to database
	ExitAuthError       = 12 // Bearer credential acquisition failed
	ExitLoadFailed      = 13 // Row load failed and was rolled back
	ExitPlanError       = 14 // Workbook produced an unpublishable table plan
)

const (
	// DefaultPollInterval is the sleep between exhausted delta passes.
	DefaultPollInterval = 30 * time.Second

	// DefaultIdentMax is the PostgreSQL identifier length limit (NAMEDATALEN-1).
	DefaultIdentMax = 63

	// MinIdentMax is the smallest identifier limit under which every
	// generated physical name is guaranteed to fit: 5 for the "phys_"
	// prefix, 1 separator, 15 for the fixed-width version stamp, and 8 for
	// the shortest truncated logical part (one kept character plus a
	// 7-character hash suffix).
	MinIdentMax = 29

	// DefaultFieldWidth is the maximum width, in characters, enforced on
	// loaded cell values.
	DefaultFieldWidth = 4000

	// DefaultRetainVersions is the number of physical tables kept per
	// logical name after cleanup, counting the current one.
	DefaultRetainVersions = 3

	// DefaultLoadBatchSize is the number of rows inserted per statement
	// inside the load transaction.
	DefaultLoadBatchSize = 500

	// DefaultRetryInitialDelay is the default initial delay before the
	// first database reconnect attempt.
	DefaultRetryInitialDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay is the default maximum delay between database
	// reconnect attempts.
	DefaultRetryMaxDelay = 1 * time.Minute

	// DefaultRetryMaxAttempts is the default maximum number of database
	// reconnect attempts.
	DefaultRetryMaxAttempts = 3

	// GraphScope is the OAuth scope requested for Microsoft Graph access.
	GraphScope = "https://graph.microsoft.com/.default"
)
