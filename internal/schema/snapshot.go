package schema

import (
	"context"
	"sort"
	"strings"
)

type (
	Column struct {
		Name     string
		Type     string
		Nullable bool
	}

	// Index with an empty Name is an unnamed unique constraint
	Index struct {
		Name    string
		Unique  bool
		Columns []string
	}

	Table struct {
		Name       string
		Columns    []Column
		PrimaryKey []string
		Indexes    []Index
	}

	// Snapshot is a structural description of a database schema
	Snapshot struct {
		Tables map[string]Table
	}
)

// Reader reads a snapshot of a live database
type Reader interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

func NewSnapshot(tables ...Table) Snapshot {
	s := Snapshot{Tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		s.Tables[t.Name] = t
	}
	return s
}

// TableNames are sorted
func (s Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s Snapshot) Table(name string) (Table, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

func (t *Table) dropColumn(name string) {
	cols := t.Columns[:0]
	for _, c := range t.Columns {
		if !strings.EqualFold(c.Name, name) {
			cols = append(cols, c)
		}
	}
	t.Columns = cols
}

func (t *Table) renameColumn(from, to string) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, from) {
			t.Columns[i].Name = to
		}
	}
	for i := range t.PrimaryKey {
		if strings.EqualFold(t.PrimaryKey[i], from) {
			t.PrimaryKey[i] = to
		}
	}
	for i := range t.Indexes {
		for j := range t.Indexes[i].Columns {
			if strings.EqualFold(t.Indexes[i].Columns[j], from) {
				t.Indexes[i].Columns[j] = to
			}
		}
	}
}

func (t *Table) updateColumn(name string, fn func(c *Column)) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			fn(&t.Columns[i])
		}
	}
}

func (t *Table) dropIndex(name string) bool {
	for i := range t.Indexes {
		if t.Indexes[i].Name != "" && strings.EqualFold(t.Indexes[i].Name, name) {
			t.Indexes = append(t.Indexes[:i], t.Indexes[i+1:]...)
			return true
		}
	}
	return false
}

// ColumnRow is one column of a live table as returned by a dialect query
type ColumnRow struct {
	Table      string `db:"table_name"`
	Name       string `db:"column_name"`
	Type       string `db:"column_type"`
	Nullable   bool   `db:"nullable"`
	PrimaryKey int    `db:"pk_position"`
}

// IndexRow is one column of a live index as returned by a dialect query,
// Origin is "u" for unique constraints and "c" for created indexes
type IndexRow struct {
	Table  string `db:"table_name"`
	Index  string `db:"index_name"`
	Unique bool   `db:"is_unique"`
	Column string `db:"column_name"`
	Origin string `db:"origin"`
}

// Assemble builds a snapshot from rows ordered by table, then by column
// position or by index and its column sequence
func Assemble(tables []string, columns []ColumnRow, indexes []IndexRow) Snapshot {
	s := Snapshot{Tables: make(map[string]Table, len(tables))}
	for _, name := range tables {
		s.Tables[name] = Table{Name: name}
	}

	pks := make(map[string][]ColumnRow)
	for _, row := range columns {
		t, ok := s.Tables[row.Table]
		if !ok {
			continue
		}

		t.Columns = append(t.Columns, Column{Name: row.Name, Type: row.Type, Nullable: row.Nullable})
		s.Tables[row.Table] = t

		if row.PrimaryKey > 0 {
			pks[row.Table] = append(pks[row.Table], row)
		}
	}

	for table, rows := range pks {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].PrimaryKey < rows[j].PrimaryKey })
		t := s.Tables[table]
		for _, r := range rows {
			t.PrimaryKey = append(t.PrimaryKey, r.Name)
		}
		s.Tables[table] = t
	}

	type liveIndex struct {
		table, raw string
		idx        Index
	}

	var grouped []liveIndex
	for _, row := range indexes {
		if _, ok := s.Tables[row.Table]; !ok {
			continue
		}

		last := len(grouped) - 1
		if last >= 0 && grouped[last].table == row.Table && grouped[last].raw == row.Index {
			grouped[last].idx.Columns = append(grouped[last].idx.Columns, row.Column)
			continue
		}

		name := row.Index
		if row.Origin == "u" {
			name = ""
		}

		grouped = append(grouped, liveIndex{
			table: row.Table,
			raw:   row.Index,
			idx:   Index{Name: name, Unique: row.Unique, Columns: []string{row.Column}},
		})
	}

	for _, g := range grouped {
		t := s.Tables[g.table]
		t.Indexes = append(t.Indexes, g.idx)
		s.Tables[g.table] = t
	}

	return s
}
