// Package publish implements the versioned atomic table publisher.
//
// Each publish attempt is strictly sequential: create a fresh physical
// table, bulk-load it inside one transaction, atomically rebind the logical
// name, re-apply grants, prune old versions. A failure before the swap
// drops the physical table and leaves the logical name untouched; failures
// from the swap onward are warnings, because the new version is already
// authoritative.
package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sheetflow/sheetflow/internal/ident"
	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

// Publisher publishes table plans into PostgreSQL.
// Not safe for concurrent Publish calls targeting the same logical name;
// the ingest loop drives one sheet at a time.
type Publisher struct {
	conn   sheetflow.DBConn
	cfg    sheetflow.PublisherConfig
	logger sheetflow.Logger
	clock  func() time.Time
}

// NewPublisher creates a Publisher. Panics if conn or logger is nil;
// returns an error for invalid configuration.
func NewPublisher(conn sheetflow.DBConn, cfg sheetflow.PublisherConfig, logger sheetflow.Logger) (*Publisher, error) {
	if conn == nil {
		panic("conn cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Publisher{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
	}, nil
}

// WithClock returns a copy of the Publisher using the given time source.
// Tests use it to generate deterministic physical names.
func (p *Publisher) WithClock(clock func() time.Time) *Publisher {
	clone := *p
	clone.clock = clock
	return &clone
}

// Publish runs one publish attempt for the plan.
func (p *Publisher) Publish(ctx context.Context, plan sheetflow.TablePlan) (sheetflow.PublishResult, error) {
	if err := plan.Validate(); err != nil {
		return sheetflow.PublishResult{}, err
	}

	logical := ident.Sanitize(plan.LogicalName, p.cfg.IdentMax)
	physical := ident.Physical(logical, p.clock(), p.cfg.IdentMax)
	columns := sanitizeColumns(plan.Columns, p.cfg.IdentMax)

	if err := p.createPhysical(ctx, physical, columns); err != nil {
		return sheetflow.PublishResult{}, err
	}

	rowCount, err := p.loadRows(ctx, physical, columns, plan.Rows)
	if err != nil {
		p.rollbackDropPhysical(ctx, physical)
		return sheetflow.PublishResult{}, err
	}
	p.logger.Info("Loaded %d rows into %s", rowCount, physical)

	if err := p.swapLogical(ctx, logical, physical); err != nil {
		p.rollbackDropPhysical(ctx, physical)
		return sheetflow.PublishResult{}, err
	}

	// From here the new version is authoritative. Grant and cleanup
	// failures are reported as warnings, never as attempt failures.
	var warnings []sheetflow.PublishWarning
	warnings = append(warnings, p.grant(ctx, logical, physical)...)
	warnings = append(warnings, p.cleanup(ctx, logical)...)

	for _, w := range warnings {
		p.logger.Warn("Publish of %s: %s", logical, w)
	}

	return sheetflow.PublishResult{
		LogicalName:  logical,
		PhysicalName: physical,
		RowCount:     rowCount,
		Warnings:     warnings,
	}, nil
}

// createPhysical creates the versioned table, one varchar column per plan
// column.
func (p *Publisher) createPhysical(ctx context.Context, physical string, columns []string) error {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%s varchar(%d)", c, p.cfg.FieldWidth)
	}

	sql := fmt.Sprintf("CREATE TABLE %s (%s)", physical, strings.Join(defs, ", "))
	if _, err := p.conn.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create physical table %s: %w", physical, err)
	}
	p.logger.Verbose("Created physical table %s", physical)
	return nil
}

// loadRows inserts the row stream in fixed-size batches inside a single
// transaction. Any failure rolls the whole transaction back.
func (p *Publisher) loadRows(ctx context.Context, physical string, columns []string, rows sheetflow.RowSource) (int, error) {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin load transaction: %v: %w", err, sheetflow.ErrLoadFailed)
	}

	total := 0
	batch := make([][]string, 0, p.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		sql, args := buildInsert(physical, columns, batch)
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		row, ok, err := rows.Next()
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("read rows for %s: %v: %w", physical, err, sheetflow.ErrLoadFailed)
		}
		if !ok {
			break
		}
		if len(row) != len(columns) {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("row has %d values, table %s has %d columns: %w",
				len(row), physical, len(columns), sheetflow.ErrLoadFailed)
		}

		batch = append(batch, row)
		if len(batch) >= p.cfg.BatchSize {
			if err := flush(); err != nil {
				_ = tx.Rollback(ctx)
				return 0, fmt.Errorf("insert batch into %s: %v: %w", physical, err, sheetflow.ErrLoadFailed)
			}
		}
	}

	if err := flush(); err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("insert batch into %s: %v: %w", physical, err, sheetflow.ErrLoadFailed)
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("commit load into %s: %v: %w", physical, err, sheetflow.ErrLoadFailed)
	}
	return total, nil
}

// swapLogical atomically rebinds the logical name. Drop and create run in
// one transaction; PostgreSQL's transactional DDL makes the pair atomic for
// readers, who see either the prior binding or the new one.
func (p *Publisher) swapLogical(ctx context.Context, logical, physical string) error {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin swap transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("DROP VIEW IF EXISTS %s", logical)); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("drop old binding %s: %w", logical, err)
	}

	var create string
	if p.cfg.SwapMode == sheetflow.SwapModeSynonym {
		// A security-invoker view carries no privileges of its own, the
		// synonym-style mechanism: readers need grants on the physical
		// table underneath.
		create = fmt.Sprintf("CREATE VIEW %s WITH (security_invoker = true) AS SELECT * FROM %s", logical, physical)
	} else {
		create = fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s", logical, physical)
	}
	if _, err := tx.Exec(ctx, create); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("bind %s to %s: %w", logical, physical, err)
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit swap of %s: %w", logical, err)
	}

	p.logger.Info("Swapped %s -> %s (%s mode)", logical, physical, p.cfg.SwapMode)
	return nil
}

// grant re-applies the configured access list to whichever object carries
// privileges under the chosen swap mechanism. Idempotent; failures are
// warnings.
func (p *Publisher) grant(ctx context.Context, logical, physical string) []sheetflow.PublishWarning {
	target := logical
	if p.cfg.SwapMode == sheetflow.SwapModeSynonym {
		target = physical
	}

	var warnings []sheetflow.PublishWarning
	for _, grantee := range p.cfg.GrantTo {
		sql := fmt.Sprintf("GRANT SELECT ON %s TO %s", target, pgx.Identifier{grantee}.Sanitize())
		if _, err := p.conn.Exec(ctx, sql); err != nil {
			warnings = append(warnings, sheetflow.PublishWarning{
				Stage: "grant",
				Err:   fmt.Errorf("grant select on %s to %s: %w", target, grantee, err),
			})
		}
	}
	return warnings
}

// cleanup keeps the newest RetainVersions physical tables for the logical
// name and drops the rest. Names embed a fixed-width timestamp, so lexical
// descending order is reverse chronological order. Individual drop failures
// are warnings; later passes retry them.
func (p *Publisher) cleanup(ctx context.Context, logical string) []sheetflow.PublishWarning {
	prefix := ident.PhysicalPrefix(logical, p.cfg.IdentMax)

	names, err := p.listPhysicalTables(ctx, prefix)
	if err != nil {
		return []sheetflow.PublishWarning{{
			Stage: "cleanup",
			Err:   fmt.Errorf("list versions of %s: %w", logical, err),
		}}
	}

	var warnings []sheetflow.PublishWarning
	for _, old := range names[min(p.cfg.RetainVersions, len(names)):] {
		if _, err := p.conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", old)); err != nil {
			warnings = append(warnings, sheetflow.PublishWarning{
				Stage: "cleanup",
				Err:   fmt.Errorf("drop old version %s: %w", old, err),
			})
			continue
		}
		p.logger.Verbose("Dropped old version %s", old)
	}
	return warnings
}

// listPhysicalTables returns current-schema tables matching prefix, sorted
// descending so the newest version comes first.
func (p *Publisher) listPhysicalTables(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.conn.Query(ctx,
		"SELECT tablename FROM pg_tables WHERE schemaname = current_schema() AND tablename LIKE $1 ORDER BY tablename DESC",
		likePattern(prefix),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		// The LIKE prefix also matches sibling logical names that start
		// with this one ("budget_eu" under "budget"). Only names that are
		// exactly prefix + stamp belong to this logical name.
		if isVersionStamp(name[len(prefix):]) {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// isVersionStamp reports whether s is a fixed-width YYYYMMDD_HHMMSS stamp,
// the exact tail every generated physical name carries.
func isVersionStamp(s string) bool {
	if len(s) != 15 || s[8] != '_' {
		return false
	}
	for i, c := range []byte(s) {
		if i == 8 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// rollbackDropPhysical removes the attempt's physical table after a pre-swap
// failure, so the attempt leaves no trace.
func (p *Publisher) rollbackDropPhysical(ctx context.Context, physical string) {
	if _, err := p.conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", physical)); err != nil {
		p.logger.Warn("Could not drop physical table %s after failed attempt: %v", physical, err)
		return
	}
	p.logger.Verbose("Dropped physical table %s after failed attempt", physical)
}

// buildInsert renders one multi-row INSERT with positional placeholders.
func buildInsert(physical string, columns []string, batch [][]string) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", physical, strings.Join(columns, ", "))

	args := make([]any, 0, len(batch)*len(columns))
	n := 1
	for i, row := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
			args = append(args, v)
		}
		b.WriteByte(')')
	}
	return b.String(), args
}

// sanitizeColumns normalizes plan columns to store identifiers. Plans from
// the workbook planner arrive pre-sanitized; this keeps hand-built plans
// safe too.
func sanitizeColumns(columns []string, maxLen int) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = ident.Sanitize(c, maxLen)
	}
	return out
}

// likePattern escapes LIKE metacharacters in prefix and appends the
// wildcard.
func likePattern(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}
