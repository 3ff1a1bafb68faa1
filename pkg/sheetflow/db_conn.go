package sheetflow

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// DBConn abstracts the database operations the table publisher needs.
// This interface decouples the publisher from pgx-specific pool types so
// tests can substitute recording fakes.
//
// Thread-Safety: implementations should follow their underlying connection's
// guarantees. Pool-backed implementations are typically safe for concurrent
// use, but the publisher itself drives one statement at a time.
type DBConn interface {
	// Exec executes a statement outside any explicit transaction.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Query executes a query returning rows (catalog lookups).
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// Begin starts an explicit transaction. The publisher uses one
	// transaction around row loading and one around the name swap.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an explicit transaction.
type Tx interface {
	// Exec executes a statement inside the transaction.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Commit commits the transaction.
	Commit(ctx context.Context) error

	// Rollback aborts the transaction. Safe to call after Commit; the
	// error is ignored by convention.
	Rollback(ctx context.Context) error
}

// Rows is the subset of a query result cursor the publisher consumes.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}
