package retry

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorClassifier decides whether a failure is worth retrying.
type ErrorClassifier interface {
	IsTransient(err error) bool
}

// PostgresClassifier classifies PostgreSQL and network errors.
// See https://www.postgresql.org/docs/current/errcodes-appendix.html
type PostgresClassifier struct{}

// NewPostgresClassifier creates a PostgreSQL error classifier.
func NewPostgresClassifier() *PostgresClassifier {
	return &PostgresClassifier{}
}

// IsTransient determines if an error is temporary and retryable.
func (c *PostgresClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientPgCode(pgErr.Code)
	}

	if isNetworkError(err) {
		return true
	}

	return matchesConnectionPattern(err.Error())
}

func isTransientPgCode(code string) bool {
	// Class 08 (connection), 53 (insufficient resources), 57 (operator
	// intervention) are transient wholesale.
	switch {
	case strings.HasPrefix(code, "08"),
		strings.HasPrefix(code, "53"),
		strings.HasPrefix(code, "57"):
		return true
	}

	switch code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Temporary() || opErr.Timeout() {
			return true
		}
		for _, errno := range []syscall.Errno{
			syscall.ECONNREFUSED,
			syscall.ECONNRESET,
			syscall.ENETUNREACH,
			syscall.EHOSTUNREACH,
		} {
			if errors.Is(opErr.Err, errno) {
				return true
			}
		}
	}
	return false
}

func matchesConnectionPattern(msg string) bool {
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"connection failure",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"too many connections",
		"server closed the connection",
		"unexpected eof",
		"connection pool exhausted",
	}

	lower := strings.ToLower(msg)
	for _, pattern := range transientPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
