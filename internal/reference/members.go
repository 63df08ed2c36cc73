package reference

import (
	"go.uber.org/zap"

	"github.com/feral-file/crm-reports/internal/logger"
)

// Reference fields every member row carries
const (
	FieldID   = "Id"
	FieldName = "Name"
	FieldTeam = "Team"
)

// Member is one row of the sales members table
type Member struct {
	ID         string
	Name       string
	Team       string
	Attributes map[string]string
}

// Table is a read-only lookup of members by ID
type Table struct {
	members map[string]Member
	ids     []string
}

// New builds a table from members. IDs are unique: a repeated ID keeps the first
// row and the rest are logged and ignored.
func New(members []Member) *Table {
	t := &Table{members: make(map[string]Member, len(members))}
	for _, m := range members {
		if _, ok := t.members[m.ID]; ok {
			logger.Warn("Duplicate member id in reference table, keeping the first row",
				zap.String("id", m.ID),
				zap.String("name", m.Name))
			continue
		}
		t.members[m.ID] = m
		t.ids = append(t.ids, m.ID)
	}
	return t
}

// Len returns the number of members
func (t *Table) Len() int {
	return len(t.ids)
}

// Lookup returns the member with the given ID
func (t *Table) Lookup(id string) (Member, bool) {
	m, ok := t.members[id]
	return m, ok
}

// Field returns a field of the member with the given ID: Name, Team or any other
// column of the source sheet. Unknown IDs and blank cells yield nil.
func (t *Table) Field(id, field string) any {
	m, ok := t.Lookup(id)
	if !ok {
		return nil
	}

	var v string
	switch field {
	case FieldID:
		v = m.ID
	case FieldName:
		v = m.Name
	case FieldTeam:
		v = m.Team
	default:
		v = m.Attributes[field]
	}

	if v == "" {
		return nil
	}
	return v
}
