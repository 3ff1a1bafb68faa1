// Package workbook turns downloaded spreadsheet files into table plans.
package workbook

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sheetflow/sheetflow/internal/ident"
	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

// Config contains the planner knobs.
type Config struct {
	// Overflow controls handling of cell values longer than FieldWidth.
	Overflow sheetflow.OverflowPolicy

	// FieldWidth is the maximum cell value length, in characters.
	FieldWidth int

	// IdentMax bounds generated table and column names.
	IdentMax int
}

// Validate checks the Config for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.FieldWidth <= 0 {
		errs = append(errs, fmt.Errorf("field width must be positive: %w", sheetflow.ErrInvalidConfig))
	}
	if c.IdentMax < sheetflow.MinIdentMax {
		errs = append(errs, fmt.Errorf("identifier limit %d is too small (minimum %d): %w", c.IdentMax, sheetflow.MinIdentMax, sheetflow.ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// Planner derives one table plan per visible, non-empty sheet of a workbook.
// A sheet's first row is its header; remaining rows are data. Logical table
// names combine the workbook base name and the sheet name.
type Planner struct {
	cfg    Config
	logger sheetflow.Logger
}

// NewPlanner creates a Planner. Panics if logger is nil; returns an error
// for invalid configuration.
func NewPlanner(cfg Config, logger sheetflow.Logger) (*Planner, error) {
	if logger == nil {
		panic("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Planner{cfg: cfg, logger: logger}, nil
}

// Plan reads the workbook at localPath and returns plans for its visible,
// non-empty sheets. An empty Sheets list is a valid outcome, not an error.
func (p *Planner) Plan(localPath string) (sheetflow.WorkbookPlan, error) {
	f, err := excelize.OpenFile(localPath)
	if err != nil {
		return sheetflow.WorkbookPlan{}, fmt.Errorf("open workbook %s: %w", localPath, err)
	}
	defer f.Close()

	base := strings.TrimSuffix(filepath.Base(localPath), filepath.Ext(localPath))
	plan := sheetflow.WorkbookPlan{
		DatasetKey: ident.Sanitize(base, p.cfg.IdentMax),
	}

	for _, sheet := range f.GetSheetList() {
		visible, err := f.GetSheetVisible(sheet)
		if err != nil {
			return sheetflow.WorkbookPlan{}, fmt.Errorf("check visibility of sheet %q: %w", sheet, err)
		}
		if !visible {
			p.logger.Verbose("Skipping hidden sheet %q", sheet)
			continue
		}

		table, ok, err := p.planSheet(f, base, sheet)
		if err != nil {
			return sheetflow.WorkbookPlan{}, err
		}
		if !ok {
			p.logger.Verbose("Skipping empty sheet %q", sheet)
			continue
		}

		plan.Sheets = append(plan.Sheets, sheetflow.SheetPlan{
			SheetName: sheet,
			Table:     table,
		})
	}

	return plan, nil
}

// planSheet builds the table plan for one sheet. ok is false when the sheet
// has no usable header row.
func (p *Planner) planSheet(f *excelize.File, base, sheet string) (sheetflow.TablePlan, bool, error) {
	cells, err := f.GetRows(sheet)
	if err != nil {
		return sheetflow.TablePlan{}, false, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(cells) == 0 || allBlank(cells[0]) {
		return sheetflow.TablePlan{}, false, nil
	}

	columns := columnNames(cells[0], p.cfg.IdentMax)

	rows := make([][]string, 0, len(cells)-1)
	for i, raw := range cells[1:] {
		row := make([]string, len(columns))
		for j := range columns {
			var v string
			if j < len(raw) {
				v = raw[j]
			}
			if width(v) > p.cfg.FieldWidth {
				if p.cfg.Overflow == sheetflow.OverflowError {
					return sheetflow.TablePlan{}, false, fmt.Errorf(
						"sheet %q row %d column %s: value of %d characters exceeds field width %d: %w",
						sheet, i+2, columns[j], width(v), p.cfg.FieldWidth, sheetflow.ErrFieldOverflow)
				}
				v = clip(v, p.cfg.FieldWidth)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	return sheetflow.TablePlan{
		LogicalName: ident.Sanitize(base+"_"+sheet, p.cfg.IdentMax),
		Columns:     columns,
		Rows:        &sliceSource{rows: rows},
	}, true, nil
}

// columnNames sanitizes the header row into unique store identifiers.
// Blank header cells become positional names; collisions after sanitization
// get a numeric suffix.
func columnNames(header []string, maxLen int) []string {
	names := make([]string, len(header))
	taken := make(map[string]struct{}, len(header))

	for i, cell := range header {
		name := ident.Sanitize(cell, maxLen)
		if strings.TrimSpace(cell) == "" {
			name = fmt.Sprintf("col_%d", i+1)
		}

		if _, dup := taken[name]; dup {
			for n := 2; ; n++ {
				suffix := fmt.Sprintf("_%d", n)
				candidate := clip(name, maxLen-len(suffix)) + suffix
				if _, dup := taken[candidate]; !dup {
					name = candidate
					break
				}
			}
		}

		taken[name] = struct{}{}
		names[i] = name
	}
	return names
}

// sliceSource is a RowSource over materialized rows.
type sliceSource struct {
	rows [][]string
	pos  int
}

func (s *sliceSource) Next() ([]string, bool, error) {
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func allBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// width counts characters the way varchar(n) does.
func width(s string) int {
	return len([]rune(s))
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
