package sheetflow

// Logger provides a pluggable logging interface for sheetflow components.
// Implementations must be safe for concurrent use by multiple goroutines.
type Logger interface {
	// Verbose logs detailed diagnostic information.
	// Only logged when verbose mode is enabled.
	Verbose(format string, args ...interface{})

	// Info logs informational messages about normal operations.
	Info(format string, args ...interface{})

	// Warn logs conditions that did not fail the operation but that an
	// operator should see (grant failures, skipped cleanup drops, corrupt
	// state files recovered as empty).
	Warn(format string, args ...interface{})

	// Error logs error messages.
	Error(format string, args ...interface{})
}
