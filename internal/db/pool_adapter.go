package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

// PoolAdapter adapts a pgxpool.Pool to the sheetflow.DBConn interface.
type PoolAdapter struct {
	pool *pgxpool.Pool
}

// NewPoolAdapter wraps a pgx connection pool. Panics if pool is nil.
func NewPoolAdapter(pool *pgxpool.Pool) *PoolAdapter {
	if pool == nil {
		panic("pool cannot be nil")
	}
	return &PoolAdapter{pool: pool}
}

// Exec executes a statement outside any explicit transaction.
func (a *PoolAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.pool.Exec(ctx, sql, args...)
}

// Query executes a query returning rows.
func (a *PoolAdapter) Query(ctx context.Context, sql string, args ...any) (sheetflow.Rows, error) {
	rows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rowsAdapter{rows}, nil
}

// Begin starts an explicit transaction.
func (a *PoolAdapter) Begin(ctx context.Context) (sheetflow.Tx, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return txAdapter{tx}, nil
}

type txAdapter struct {
	tx pgx.Tx
}

func (t txAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.tx.Exec(ctx, sql, args...)
}

func (t txAdapter) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t txAdapter) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

type rowsAdapter struct {
	rows pgx.Rows
}

func (r rowsAdapter) Next() bool             { return r.rows.Next() }
func (r rowsAdapter) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r rowsAdapter) Err() error             { return r.rows.Err() }
func (r rowsAdapter) Close()                 { r.rows.Close() }
