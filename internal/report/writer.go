package report

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/feral-file/crm-reports/internal/adapter"
	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/logger"
	"github.com/feral-file/crm-reports/internal/table"
)

// Mode decides what happens to an existing workbook
type Mode string

const (
	// ModeAppend keeps the other sheets of an existing workbook and replaces same-named ones
	ModeAppend Mode = "append"
	// ModeReplace writes a new workbook holding only the given sheets
	ModeReplace Mode = "replace"
)

// defaultSheet is the sheet every new workbook starts with
const defaultSheet = "Sheet1"

// dateTimeFormat is the built-in "m/d/yy h:mm" number format
const dateTimeFormat = 22

// Sheet is a named table to write
type Sheet struct {
	Name  string
	Table *table.Table
}

// Writer defines the interface for writing report workbooks to enable mocking
//
//go:generate mockgen -source=writer.go -destination=../mocks/report_writer.go -package=mocks -mock_names=Writer=MockReportWriter
type Writer interface {
	// Write stores sheets in the workbook at path. The file is replaced atomically:
	// on error the previous workbook, if any, is left as it was.
	Write(ctx context.Context, path string, mode Mode, sheets ...Sheet) error
}

// XLSXWriter implements Writer with excelize
type XLSXWriter struct {
	fs adapter.FileSystem
}

// NewWriter creates a new workbook writer
func NewWriter(fs adapter.FileSystem) Writer {
	return &XLSXWriter{fs: fs}
}

// Write stores sheets in the workbook at path
func (w *XLSXWriter) Write(ctx context.Context, path string, mode Mode, sheets ...Sheet) error {
	if mode != ModeAppend && mode != ModeReplace {
		return fmt.Errorf("%w: unsupported write mode %q", domain.ErrInvalidConfig, mode)
	}
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write to %s", path)
	}

	f, fresh, err := w.open(path, mode)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: dateTimeFormat})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	written := make(map[string]struct{}, len(sheets))
	for _, sheet := range sheets {
		if err := writeSheet(f, sheet, dateStyle); err != nil {
			return err
		}
		written[sheet.Name] = struct{}{}
	}

	if _, ok := written[defaultSheet]; fresh && !ok {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("failed to remove default sheet: %w", err)
		}
	}

	if idx, err := f.GetSheetIndex(sheets[0].Name); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	if err := w.save(f, path); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "Wrote report workbook",
		zap.String("path", path),
		zap.String("mode", string(mode)),
		zap.Int("sheets", len(sheets)))

	return nil
}

// open loads the existing workbook in append mode or starts a new one.
// fresh reports whether the workbook is new.
func (w *XLSXWriter) open(path string, mode Mode) (f *excelize.File, fresh bool, err error) {
	if mode == ModeAppend {
		exists, err := w.fs.Exists(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to check %s: %w", path, err)
		}
		if exists {
			payload, err := w.fs.ReadFile(path)
			if err != nil {
				return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
			}
			f, err := excelize.OpenReader(bytes.NewReader(payload))
			if err != nil {
				return nil, false, fmt.Errorf("failed to open workbook %s: %w", path, err)
			}
			return f, false, nil
		}
	}
	return excelize.NewFile(), true, nil
}

// writeSheet streams a table into a sheet. An existing sheet of the same name is
// rewritten where it stands, so the tab order of the workbook is kept.
func writeSheet(f *excelize.File, sheet Sheet, dateStyle int) error {
	name := sheet.Name
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("invalid sheet name %q: %w", name, err)
	}

	// The stream writer drops the old rows of an existing sheet on flush
	if idx < 0 {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", name, err)
		}
	}

	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("failed to open sheet %q: %w", name, err)
	}

	columns := sheet.Table.Columns()
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header of %q: %w", name, err)
	}

	for r, row := range sheet.Table.Rows() {
		values := make([]interface{}, len(columns))
		for i, c := range columns {
			values[i] = cellValue(row[c], dateStyle)
		}
		ref, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(ref, values); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", r+1, name, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet %q: %w", name, err)
	}

	return nil
}

// cellValue converts a record value to what the stream writer accepts
func cellValue(v any, dateStyle int) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return excelize.Cell{StyleID: dateStyle, Value: val}
	case string, bool, int, int64, float64:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// save writes the workbook to a temporary file next to path and renames it into place
func (w *XLSXWriter) save(f *excelize.File, path string) error {
	tmp, err := w.fs.CreateTemp(filepath.Dir(path), ".crm-reports-*.xlsx")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	cleanup := func() {
		if err := w.fs.Remove(tmp.Name()); err != nil {
			logger.Warn("failed to remove temporary file", zap.String("path", tmp.Name()), zap.Error(err))
		}
	}

	if _, err := f.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := w.fs.Rename(tmp.Name(), path); err != nil {
		cleanup()
		return fmt.Errorf("failed to move workbook into place: %w", err)
	}

	return nil
}
