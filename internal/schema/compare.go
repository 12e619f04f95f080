package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type (
	Kind   string
	Object string
)

const (
	Added   Kind = "added"
	Missing Kind = "missing"
	Altered Kind = "altered"

	TableObject      Object = "table"
	ColumnObject     Object = "column"
	IndexObject      Object = "index"
	ConstraintObject Object = "constraint"
)

// Divergence is a structural mismatch between a live and a declared schema.
// Added objects exist only in the live schema, missing ones only in the declared.
type Divergence struct {
	Kind     Kind
	Object   Object
	Table    string
	Name     string
	Live     string
	Declared string
}

func (d Divergence) String() string {
	subject := d.Table
	if d.Object != TableObject {
		subject = d.Table + "." + d.Name
	}

	if d.Kind == Altered {
		return fmt.Sprintf("%s %s %s: live [%s] declared [%s]", d.Object, subject, d.Kind, d.Live, d.Declared)
	}
	return fmt.Sprintf("%s %s %s", d.Object, subject, d.Kind)
}

// Policy decides which differences are cosmetic
type Policy struct {
	IgnoreTables      []string
	CaseInsensitive   bool
	IgnoreColumnTypes bool
	IgnoreNullability bool
	IgnoreIndexes     bool
	// NormalizeType replaces the default type normalisation when set
	NormalizeType func(string) string
}

func DefaultPolicy() Policy {
	return Policy{CaseInsensitive: true}
}

func (p Policy) key(name string) string {
	if p.CaseInsensitive {
		return strings.ToLower(name)
	}
	return name
}

func (p Policy) ignored(table string) bool {
	for _, t := range p.IgnoreTables {
		if p.key(t) == p.key(table) {
			return true
		}
	}
	return false
}

func (p Policy) normalizeType(t string) string {
	if p.NormalizeType != nil {
		return p.NormalizeType(t)
	}
	return NormalizeType(t)
}

var (
	spacesRe       = regexp.MustCompile(`\s+`)
	displayWidthRe = regexp.MustCompile(`^(tinyint|smallint|mediumint|int|bigint)\(\d+\)`)
)

var typeAliases = map[string]string{
	"integer":                     "int",
	"int4":                        "int",
	"serial":                      "int",
	"int8":                        "bigint",
	"bigserial":                   "bigint",
	"int2":                        "smallint",
	"bool":                        "boolean",
	"character varying":           "varchar",
	"character":                   "char",
	"float8":                      "double",
	"double precision":            "double",
	"float4":                      "real",
	"timestamp without time zone": "timestamp",
	"timestamp with time zone":    "timestamptz",
	"time without time zone":      "time",
	"numeric":                     "decimal",
}

// NormalizeType lower-cases a column type, collapses whitespace, removes the
// display width of integer types and maps common aliases to one spelling
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(spacesRe.ReplaceAllString(t, " ")))
	t = strings.ReplaceAll(t, " (", "(")
	t = strings.ReplaceAll(t, ", ", ",")
	t = displayWidthRe.ReplaceAllString(t, "$1")

	base, rest := t, ""
	if i := strings.Index(t, "("); i >= 0 {
		base, rest = t[:i], t[i:]
	}

	if alias, ok := typeAliases[strings.TrimSpace(base)]; ok {
		base = alias
	}

	return base + rest
}

// Compare reports divergences between a live and a declared snapshot.
// It does not mutate its arguments and its output is sorted.
func Compare(live, declared Snapshot, p Policy) []Divergence {
	var result []Divergence

	liveTables := p.tableIndex(live)
	declaredTables := p.tableIndex(declared)

	for key, lt := range liveTables {
		dt, ok := declaredTables[key]
		if !ok {
			result = append(result, Divergence{Kind: Added, Object: TableObject, Table: lt.Name, Name: lt.Name})
			continue
		}
		result = append(result, p.compareTables(lt, dt)...)
	}

	for key, dt := range declaredTables {
		if _, ok := liveTables[key]; !ok {
			result = append(result, Divergence{Kind: Missing, Object: TableObject, Table: dt.Name, Name: dt.Name})
		}
	}

	sortDivergences(result)

	return result
}

func (p Policy) tableIndex(s Snapshot) map[string]Table {
	idx := make(map[string]Table, len(s.Tables))
	for name, t := range s.Tables {
		if p.ignored(name) {
			continue
		}
		idx[p.key(name)] = t
	}
	return idx
}

func (p Policy) compareTables(live, declared Table) []Divergence {
	var result []Divergence
	table := declared.Name

	liveCols := make(map[string]Column, len(live.Columns))
	for _, c := range live.Columns {
		liveCols[p.key(c.Name)] = c
	}
	declaredCols := make(map[string]Column, len(declared.Columns))
	for _, c := range declared.Columns {
		declaredCols[p.key(c.Name)] = c
	}

	livePK := p.columnSet(live.PrimaryKey)
	declaredPK := p.columnSet(declared.PrimaryKey)

	for key, lc := range liveCols {
		dc, ok := declaredCols[key]
		if !ok {
			result = append(result, Divergence{Kind: Added, Object: ColumnObject, Table: table, Name: lc.Name})
			continue
		}

		if !p.IgnoreColumnTypes {
			if lt, dt := p.normalizeType(lc.Type), p.normalizeType(dc.Type); lt != dt {
				result = append(result, Divergence{
					Kind: Altered, Object: ColumnObject, Table: table, Name: dc.Name,
					Live: "type " + lt, Declared: "type " + dt,
				})
			}
		}

		// primary key columns are never null whatever the catalog reports
		_, inLivePK := livePK[key]
		_, inDeclaredPK := declaredPK[key]
		if !p.IgnoreNullability && !inLivePK && !inDeclaredPK && lc.Nullable != dc.Nullable {
			result = append(result, Divergence{
				Kind: Altered, Object: ColumnObject, Table: table, Name: dc.Name,
				Live: nullability(lc.Nullable), Declared: nullability(dc.Nullable),
			})
		}
	}

	for key, dc := range declaredCols {
		if _, ok := liveCols[key]; !ok {
			result = append(result, Divergence{Kind: Missing, Object: ColumnObject, Table: table, Name: dc.Name})
		}
	}

	if l, d := p.keySignature(live.PrimaryKey), p.keySignature(declared.PrimaryKey); l != d {
		div := Divergence{Kind: Altered, Object: ConstraintObject, Table: table, Name: "primary key", Live: l, Declared: d}
		switch {
		case len(live.PrimaryKey) == 0:
			div.Kind = Missing
		case len(declared.PrimaryKey) == 0:
			div.Kind = Added
		}
		result = append(result, div)
	}

	if !p.IgnoreIndexes {
		result = append(result, p.compareIndexes(table, live.Indexes, declared.Indexes)...)
	}

	return result
}

// compareIndexes matches indexes by their uniqueness and columns first,
// then by name, so naming differences alone are not reported
func (p Policy) compareIndexes(table string, live, declared []Index) []Divergence {
	var result []Divergence

	liveLeft := append([]Index(nil), live...)
	declaredLeft := make([]Index, 0, len(declared))

	for _, di := range declared {
		sig := p.signature(di.Unique, di.Columns)
		matched := -1
		for i, li := range liveLeft {
			if p.signature(li.Unique, li.Columns) == sig {
				matched = i
				break
			}
		}

		if matched >= 0 {
			liveLeft = append(liveLeft[:matched], liveLeft[matched+1:]...)
		} else {
			declaredLeft = append(declaredLeft, di)
		}
	}

	for _, di := range declaredLeft {
		matched := -1
		for i, li := range liveLeft {
			if di.Name != "" && p.key(li.Name) == p.key(di.Name) {
				matched = i
				break
			}
		}

		if matched < 0 {
			result = append(result, Divergence{
				Kind: Missing, Object: indexObject(di), Table: table, Name: indexName(di),
				Declared: p.signature(di.Unique, di.Columns),
			})
			continue
		}

		li := liveLeft[matched]
		liveLeft = append(liveLeft[:matched], liveLeft[matched+1:]...)
		result = append(result, Divergence{
			Kind: Altered, Object: indexObject(di), Table: table, Name: di.Name,
			Live: p.signature(li.Unique, li.Columns), Declared: p.signature(di.Unique, di.Columns),
		})
	}

	for _, li := range liveLeft {
		result = append(result, Divergence{
			Kind: Added, Object: indexObject(li), Table: table, Name: indexName(li),
			Live: p.signature(li.Unique, li.Columns),
		})
	}

	return result
}

func (p Policy) columnSet(cols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[p.key(c)] = struct{}{}
	}
	return set
}

// keySignature ignores the order of primary key columns
func (p Policy) keySignature(cols []string) string {
	if len(cols) == 0 {
		return ""
	}

	sorted := make([]string, len(cols))
	for i, c := range cols {
		sorted[i] = p.key(c)
	}
	sort.Strings(sorted)

	return "(" + strings.Join(sorted, ", ") + ")"
}

func (p Policy) signature(unique bool, cols []string) string {
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = p.key(c)
	}

	prefix := ""
	if unique {
		prefix = "unique "
	}

	return prefix + "(" + strings.Join(keys, ", ") + ")"
}

func indexObject(idx Index) Object {
	if idx.Name == "" {
		return ConstraintObject
	}
	return IndexObject
}

func indexName(idx Index) string {
	if idx.Name != "" {
		return idx.Name
	}
	return "unique(" + strings.Join(idx.Columns, ",") + ")"
}

func nullability(nullable bool) string {
	if nullable {
		return "null"
	}
	return "not null"
}

var objectOrder = map[Object]int{TableObject: 0, ColumnObject: 1, ConstraintObject: 2, IndexObject: 3}

func sortDivergences(ds []Divergence) {
	sort.Slice(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if objectOrder[a.Object] != objectOrder[b.Object] {
			return objectOrder[a.Object] < objectOrder[b.Object]
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Live+a.Declared < b.Live+b.Declared
	})
}
