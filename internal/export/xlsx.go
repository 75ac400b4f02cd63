// Package export writes evaluated records as spreadsheets or JSON lines, and
// reads URL lists out of spreadsheets for batch runs.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"scrape/internal/engine"
	"scrape/internal/schema"
)

// Row is one evaluated input: where it came from, its record, or the error
// that kept it from being evaluated.
type Row struct {
	Source string
	Record *engine.Record
	Err    error
}

// Header names of the fixed columns around the schema fields.
const (
	SourceColumn = "source"
	ErrorsColumn = "errors"
)

// Writer renders rows for one schema.
type Writer struct {
	schema *schema.Schema
	logger *slog.Logger
}

func NewWriter(s *schema.Schema, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{schema: s, logger: logger}
}

// Columns returns the header row: source, every schema field in declaration
// order, then errors.
func (w *Writer) Columns() []string {
	cols := make([]string, 0, len(w.schema.Fields)+2)
	cols = append(cols, SourceColumn)
	cols = append(cols, w.schema.Names()...)
	return append(cols, ErrorsColumn)
}

// WriteXLSX writes rows as a single-sheet workbook named after the schema.
// Numbers stay numeric cells; a row whose input failed carries only its
// source and the failure.
func (w *Writer) WriteXLSX(ctx context.Context, out io.Writer, rows []Row) error {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := sheetName(w.schema.Name)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	cols := w.Columns()
	for i, h := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("xlsx header: %w", err)
		}
	}

	for r, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := r + 2
		write := func(col int, v any) error {
			cell, _ := excelize.CoordinatesToCellName(col, line)
			return f.SetCellValue(sheet, cell, v)
		}

		if err := write(1, row.Source); err != nil {
			return fmt.Errorf("xlsx row %d: %w", line, err)
		}
		for i, c := range cols[1 : len(cols)-1] {
			if row.Record == nil {
				break
			}
			v, ok := row.Record.Get(c)
			if !ok || v == nil {
				continue
			}
			if err := write(i+2, cellValue(v)); err != nil {
				return fmt.Errorf("xlsx row %d: %w", line, err)
			}
		}
		if msg := rowErrors(row); msg != "" {
			if err := write(len(cols), msg); err != nil {
				return fmt.Errorf("xlsx row %d: %w", line, err)
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 48)

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	w.logger.Info("export.xlsx.ok",
		"schema", w.schema.Name,
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func rowErrors(row Row) string {
	if row.Err != nil {
		return row.Err.Error()
	}
	if row.Record == nil {
		return ""
	}
	return strings.Join(row.Record.ErrorStrings(), "; ")
}

// cellValue maps record values onto cell types excelize writes natively.
func cellValue(v any) any {
	switch x := v.(type) {
	case string, float64, bool:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, it := range x {
			parts[i] = fmt.Sprint(it)
		}
		return strings.Join(parts, schema.DefaultSeparator)
	default:
		return fmt.Sprint(x)
	}
}

// sheetName trims s to a valid worksheet name.
func sheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return "Records"
	}
	if r := []rune(s); len(r) > 31 {
		s = string(r[:31])
	}
	return s
}
