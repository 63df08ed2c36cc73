package reference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/feral-file/crm-reports/internal/adapter"
	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/logger"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Load reads the members table from an xlsx workbook or a CSV file. The format is
// detected from content. sheet selects the worksheet of a workbook; empty picks the
// first one. The header row must name the Id, Name and Team columns.
func Load(ctx context.Context, fs adapter.FileSystem, path, sheet string) (*Table, error) {
	payload, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", domain.ErrInvalidReference, path, err)
	}

	mtype := mimetype.Detect(payload)

	var rows [][]string
	switch {
	case isA(mtype, xlsxMIME), isA(mtype, "application/zip"):
		rows, err = parseExcel(payload, sheet)
	case isA(mtype, "text/plain"):
		rows, err = parseCSV(payload)
	default:
		err = fmt.Errorf("unsupported format %s", mtype.String())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidReference, path, err)
	}

	members, err := toMembers(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidReference, path, err)
	}

	t := New(members)
	logger.InfoCtx(ctx, "Loaded reference table",
		zap.String("path", path),
		zap.String("mimeType", mtype.String()),
		zap.Int("members", t.Len()))

	return t, nil
}

// isA reports whether m or one of its parents is the expected MIME type
func isA(m *mimetype.MIME, expected string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(expected) {
			return true
		}
	}
	return false
}

func parseCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func parseExcel(payload []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// toMembers maps rows to members using the first non-blank row as header
func toMembers(rows [][]string) ([]Member, error) {
	var header []string
	var members []Member
	index := map[string]int{}

	for _, row := range rows {
		if isBlank(row) {
			continue
		}

		if header == nil {
			header = make([]string, len(row))
			for i, h := range row {
				header[i] = strings.TrimSpace(h)
				if _, dup := index[header[i]]; !dup && header[i] != "" {
					index[header[i]] = i
				}
			}
			for _, required := range []string{FieldID, FieldName, FieldTeam} {
				if _, ok := index[required]; !ok {
					return nil, fmt.Errorf("header row lacks the %s column", required)
				}
			}
			continue
		}

		id := cell(row, index[FieldID])
		if id == "" {
			continue
		}

		m := Member{
			ID:         id,
			Name:       cell(row, index[FieldName]),
			Team:       cell(row, index[FieldTeam]),
			Attributes: map[string]string{},
		}
		for name, i := range index {
			if name == FieldID || name == FieldName || name == FieldTeam {
				continue
			}
			if v := cell(row, i); v != "" {
				m.Attributes[name] = v
			}
		}
		members = append(members, m)
	}

	if header == nil {
		return nil, fmt.Errorf("no rows found")
	}

	return members, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
