package sheetflow

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	err := publisher.Publish(ctx, plan)
//	if errors.Is(err, sheetflow.ErrLoadFailed) {
//	    // Row load was rolled back; the logical name is untouched.
//	}
var (
	// ErrAuth indicates no usable bearer credential could be obtained.
	// Fatal to the process; never retried automatically.
	ErrAuth = errors.New("credential acquisition failed")

	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the database connection failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrLoadFailed indicates row insertion failed and the publish attempt
	// was rolled back. The item must not be marked processed.
	ErrLoadFailed = errors.New("row load failed")

	// ErrPlanInvalid indicates a table plan violates identifier or column
	// constraints and cannot be published.
	ErrPlanInvalid = errors.New("invalid table plan")

	// ErrFieldOverflow indicates a cell value exceeded the configured field
	// width while the overflow policy is set to "error".
	ErrFieldOverflow = errors.New("field value exceeds configured width")
)

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrAuth):
		return ExitAuthError
	case errors.Is(err, ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	case errors.Is(err, ErrLoadFailed):
		return ExitLoadFailed
	case errors.Is(err, ErrPlanInvalid), errors.Is(err, ErrFieldOverflow):
		return ExitPlanError
	}

	// Fall back to connection error patterns from pgx and net.
	errStr := err.Error()
	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
