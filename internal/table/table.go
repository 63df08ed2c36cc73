package table

import (
	"sort"
	"strings"

	"github.com/feral-file/crm-reports/internal/domain"
)

// Table is an ordered set of columns over ordered rows.
// Rows may lack a column; a missing cell reads as nil.
type Table struct {
	columns []string
	rows    []domain.FlatRecord
}

// New creates an empty table with the given columns
func New(columns ...string) *Table {
	return &Table{columns: dedupe(columns)}
}

// FromRecords builds a table from flat records. Columns named in preferred come
// first, in that order, when at least one record holds them; keys are matched
// case-insensitively and take the record's spelling. Remaining keys follow sorted.
func FromRecords(records []domain.FlatRecord, preferred []string) *Table {
	keys := make(map[string]struct{})
	for _, record := range records {
		for k := range record {
			keys[k] = struct{}{}
		}
	}

	byFold := make(map[string]string, len(keys))
	for k := range keys {
		byFold[strings.ToLower(k)] = k
	}

	columns := make([]string, 0, len(keys))
	used := make(map[string]struct{}, len(keys))
	for _, p := range preferred {
		k, ok := byFold[strings.ToLower(p)]
		if !ok {
			continue
		}
		if _, dup := used[k]; dup {
			continue
		}
		used[k] = struct{}{}
		columns = append(columns, k)
	}

	rest := make([]string, 0, len(keys)-len(columns))
	for k := range keys {
		if _, ok := used[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	columns = append(columns, rest...)

	rows := make([]domain.FlatRecord, len(records))
	for i, record := range records {
		rows[i] = record.Clone()
	}

	return &Table{columns: columns, rows: rows}
}

// Columns returns a copy of the column names in order
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Rows returns the rows. Callers must not modify them.
func (t *Table) Rows() []domain.FlatRecord {
	return t.rows
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// HasColumn reports whether the table has the named column
func (t *Table) HasColumn(name string) bool {
	return t.index(name) >= 0
}

// Append adds a row. Keys outside the column set are kept but not listed as columns.
func (t *Table) Append(row domain.FlatRecord) {
	t.rows = append(t.rows, row)
}

// Column returns the values of the named column, nil for missing cells
func (t *Table) Column(name string) []any {
	values := make([]any, len(t.rows))
	for i, row := range t.rows {
		values[i] = row[name]
	}
	return values
}

// Set adds the named column, if absent, and fills it from fn
func (t *Table) Set(name string, fn func(row domain.FlatRecord) any) {
	if !t.HasColumn(name) {
		t.columns = append(t.columns, name)
	}
	for _, row := range t.rows {
		row[name] = fn(row)
	}
}

// Rename renames columns by the given mapping. Unknown names are ignored.
func (t *Table) Rename(mapping map[string]string) {
	for i, c := range t.columns {
		if to, ok := mapping[c]; ok {
			t.columns[i] = to
		}
	}
	for _, row := range t.rows {
		renamed := make(map[string]any, len(mapping))
		for from, to := range mapping {
			if v, ok := row[from]; ok {
				renamed[to] = v
				delete(row, from)
			}
		}
		for k, v := range renamed {
			row[k] = v
		}
	}
	t.columns = dedupe(t.columns)
}

// Drop removes the named columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}

	kept := t.columns[:0]
	for _, c := range t.columns {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
		}
	}
	t.columns = kept

	for _, row := range t.rows {
		for n := range drop {
			delete(row, n)
		}
	}
}

// Cell returns the value at row i of the named column
func (t *Table) Cell(i int, name string) any {
	return t.rows[i][name]
}

func (t *Table) index(name string) int {
	for i, c := range t.columns {
		if c == name {
			return i
		}
	}
	return -1
}

func dedupe(columns []string) []string {
	seen := make(map[string]struct{}, len(columns))
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Clone returns a copy of the table; rows are copied one level deep
func (t *Table) Clone() *Table {
	rows := make([]domain.FlatRecord, len(t.rows))
	for i, row := range t.rows {
		rows[i] = row.Clone()
	}
	return &Table{columns: t.Columns(), rows: rows}
}
