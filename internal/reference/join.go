package reference

import (
	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/table"
)

// Lookup adds Column to a table, filled with Field of the member whose ID is in IDColumn
type Lookup struct {
	IDColumn string
	Column   string
	Field    string
}

// JoinNames returns a copy of t with one column per lookup. It is a left join on a
// unique key: every input row appears once in the output, in the same order, and
// IDs missing from ref resolve to nil.
func JoinNames(t *table.Table, ref *Table, lookups []Lookup) *table.Table {
	out := t.Clone()
	for _, l := range lookups {
		out.Set(l.Column, func(row domain.FlatRecord) any {
			id := row.String(l.IDColumn)
			if id == "" {
				return nil
			}
			return ref.Field(id, l.Field)
		})
	}
	return out
}
