package schema

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnsupportedStatement = errors.New("unsupported DDL statement")

var (
	createTableRe = regexp.MustCompile(`(?is)^CREATE\s+(?:TEMP(?:ORARY)?\s+)?TABLE\s+(IF\s+NOT\s+EXISTS\s+)?([^\s(]+)\s*\(`)
	createIndexRe = regexp.MustCompile(`(?is)^CREATE\s+(UNIQUE\s+)?INDEX\s+(?:CONCURRENTLY\s+)?(?:IF\s+NOT\s+EXISTS\s+)?([^\s(]+)\s+ON\s+([^\s(]+)\s*(?:USING\s+\w+\s*)?\(`)
	dropTableRe   = regexp.MustCompile(`(?is)^DROP\s+TABLE\s+(?:IF\s+EXISTS\s+)?(.+?)(?:\s+CASCADE|\s+RESTRICT)?$`)
	dropIndexRe   = regexp.MustCompile(`(?is)^DROP\s+INDEX\s+(?:CONCURRENTLY\s+)?(?:IF\s+EXISTS\s+)?([^\s]+)(?:\s+ON\s+([^\s]+))?`)
	alterTableRe  = regexp.MustCompile(`(?is)^ALTER\s+TABLE\s+(?:IF\s+EXISTS\s+)?([^\s]+)\s+(.+)$`)
	addColumnRe   = regexp.MustCompile(`(?is)^ADD\s+(?:COLUMN\s+)?(?:IF\s+NOT\s+EXISTS\s+)?(.+)$`)
	dropColumnRe  = regexp.MustCompile(`(?is)^DROP\s+(?:COLUMN\s+)?(?:IF\s+EXISTS\s+)?([^\s]+)`)
	dropKeyRe     = regexp.MustCompile(`(?is)^DROP\s+(?:INDEX|KEY|CONSTRAINT)\s+(?:IF\s+EXISTS\s+)?([^\s]+)`)
	dropPKRe      = regexp.MustCompile(`(?is)^DROP\s+PRIMARY\s+KEY`)
	renameToRe    = regexp.MustCompile(`(?is)^RENAME\s+TO\s+([^\s]+)`)
	renameColRe   = regexp.MustCompile(`(?is)^RENAME\s+COLUMN\s+([^\s]+)\s+TO\s+([^\s]+)`)
	modifyColRe   = regexp.MustCompile(`(?is)^MODIFY\s+(?:COLUMN\s+)?(.+)$`)
	alterNullRe   = regexp.MustCompile(`(?is)^ALTER\s+(?:COLUMN\s+)?([^\s]+)\s+(SET|DROP)\s+NOT\s+NULL`)
	alterTypeRe   = regexp.MustCompile(`(?is)^ALTER\s+(?:COLUMN\s+)?([^\s]+)\s+(?:SET\s+DATA\s+)?TYPE\s+(.+?)(?:\s+USING\s+.*)?$`)
	alterOtherRe  = regexp.MustCompile(`(?is)^ALTER\s+(?:COLUMN\s+)?([^\s]+)\s+(?:SET|DROP)\s+DEFAULT`)
	ignoredRe     = regexp.MustCompile(`(?is)^(INSERT|UPDATE|DELETE|SELECT|PRAGMA|SET|BEGIN|COMMIT|CREATE\s+(?:OR\s+REPLACE\s+)?(?:VIEW|TRIGGER|FUNCTION|EXTENSION|SCHEMA|SEQUENCE|TYPE)|DROP\s+(?:VIEW|TRIGGER|FUNCTION|SEQUENCE|TYPE)|COMMENT)\b`)
)

// columnKeywords end the type part of a column definition
var columnKeywords = map[string]bool{
	"NOT": true, "NULL": true, "PRIMARY": true, "UNIQUE": true, "DEFAULT": true,
	"REFERENCES": true, "CHECK": true, "CONSTRAINT": true, "AUTO_INCREMENT": true,
	"AUTOINCREMENT": true, "COLLATE": true, "GENERATED": true, "COMMENT": true,
	"ON": true, "AS": true,
}

// ParseDDL builds the snapshot that results from applying the DDL statements
// in order to an empty database. Data statements are ignored.
func ParseDDL(ddl string) (Snapshot, error) {
	s := Snapshot{Tables: make(map[string]Table)}
	if err := s.Apply(ddl); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Apply changes the snapshot by the DDL statements of a script
func (s *Snapshot) Apply(ddl string) error {
	if s.Tables == nil {
		s.Tables = make(map[string]Table)
	}

	for _, stmt := range SplitStatements(ddl) {
		if err := s.applyStatement(stmt); err != nil {
			return errors.Wrapf(err, "statement [%s]", stmt)
		}
	}

	return nil
}

func (s *Snapshot) applyStatement(stmt string) error {
	switch {
	case createTableRe.MatchString(stmt):
		return s.createTable(stmt)
	case createIndexRe.MatchString(stmt):
		m := createIndexRe.FindStringSubmatchIndex(stmt)
		name, table := unquote(stmt[m[4]:m[5]]), unquote(stmt[m[6]:m[7]])
		t, ok := s.lookup(table)
		if !ok {
			return errors.Errorf("index [%s] on unknown table [%s]", name, table)
		}
		cols, ok := enclosed(stmt[m[1]-1:])
		if !ok {
			return errors.Errorf("unbalanced parentheses in index [%s]", name)
		}
		t.Indexes = append(t.Indexes, Index{
			Name:    name,
			Unique:  m[2] >= 0,
			Columns: parseColumnList(cols),
		})
		s.Tables[t.Name] = t
	case dropTableRe.MatchString(stmt):
		m := dropTableRe.FindStringSubmatch(stmt)
		for _, name := range splitTopLevel(m[1], ',') {
			if t, ok := s.lookup(unquote(name)); ok {
				delete(s.Tables, t.Name)
			}
		}
	case dropIndexRe.MatchString(stmt):
		m := dropIndexRe.FindStringSubmatch(stmt)
		name := unquote(m[1])
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		for tn, t := range s.Tables {
			if t.dropIndex(name) {
				s.Tables[tn] = t
				break
			}
		}
	case alterTableRe.MatchString(stmt):
		m := alterTableRe.FindStringSubmatch(stmt)
		return s.alterTable(unquote(m[1]), m[2])
	case ignoredRe.MatchString(stmt):
	default:
		return ErrUnsupportedStatement
	}

	return nil
}

func (s *Snapshot) createTable(stmt string) error {
	m := createTableRe.FindStringSubmatchIndex(stmt)
	ifNotExists := m[2] >= 0
	name := unquote(stmt[m[4]:m[5]])

	if _, ok := s.lookup(name); ok {
		if ifNotExists {
			return nil
		}
		return errors.Errorf("table [%s] already exists", name)
	}

	body, ok := enclosed(stmt[m[1]-1:])
	if !ok {
		return errors.Errorf("unbalanced parentheses in table [%s]", name)
	}

	t := Table{Name: name}
	for _, def := range splitTopLevel(body, ',') {
		if def = strings.TrimSpace(def); def != "" {
			t.addDefinition(def)
		}
	}
	t.settlePrimaryKey()

	s.Tables[name] = t
	return nil
}

func (s *Snapshot) alterTable(table, action string) error {
	t, ok := s.lookup(table)
	if !ok {
		return errors.Errorf("alter of unknown table [%s]", table)
	}

	for _, part := range splitTopLevel(action, ',') {
		part = strings.TrimSpace(part)
		switch {
		case renameToRe.MatchString(part):
			delete(s.Tables, t.Name)
			t.Name = unquote(renameToRe.FindStringSubmatch(part)[1])
		case renameColRe.MatchString(part):
			m := renameColRe.FindStringSubmatch(part)
			t.renameColumn(unquote(m[1]), unquote(m[2]))
		case dropPKRe.MatchString(part):
			t.PrimaryKey = nil
		case dropKeyRe.MatchString(part):
			t.dropIndex(unquote(dropKeyRe.FindStringSubmatch(part)[1]))
		case addColumnRe.MatchString(part):
			t.addDefinition(addColumnRe.FindStringSubmatch(part)[1])
			t.settlePrimaryKey()
		case dropColumnRe.MatchString(part):
			t.dropColumn(unquote(dropColumnRe.FindStringSubmatch(part)[1]))
		case modifyColRe.MatchString(part):
			def := modifyColRe.FindStringSubmatch(part)[1]
			t.dropColumn(unquote(fieldsTopLevel(def)[0]))
			t.addDefinition(def)
			t.settlePrimaryKey()
		case alterNullRe.MatchString(part):
			m := alterNullRe.FindStringSubmatch(part)
			t.updateColumn(unquote(m[1]), func(c *Column) { c.Nullable = strings.EqualFold(m[2], "DROP") })
		case alterTypeRe.MatchString(part):
			m := alterTypeRe.FindStringSubmatch(part)
			t.updateColumn(unquote(m[1]), func(c *Column) { c.Type = strings.TrimSpace(m[2]) })
		case alterOtherRe.MatchString(part):
		default:
			return errors.Wrapf(ErrUnsupportedStatement, "alter table action [%s]", part)
		}
	}

	s.Tables[t.Name] = t
	return nil
}

func (s *Snapshot) lookup(name string) (Table, bool) {
	if t, ok := s.Tables[name]; ok {
		return t, true
	}
	for tn, t := range s.Tables {
		if strings.EqualFold(tn, name) {
			return t, true
		}
	}
	return Table{}, false
}

// addDefinition handles one entry of a CREATE TABLE body
func (t *Table) addDefinition(def string) {
	fields := fieldsTopLevel(def)
	head := strings.ToUpper(fields[0])

	switch head {
	case "CONSTRAINT":
		if len(fields) > 2 {
			t.addDefinition(strings.Join(fields[2:], " "))
		}
		return
	case "PRIMARY":
		t.PrimaryKey = parseColumnList(tail(def))
		return
	case "UNIQUE":
		t.Indexes = append(t.Indexes, Index{Name: namedKey(fields[1:]), Unique: true, Columns: parseColumnList(tail(def))})
		return
	case "KEY", "INDEX":
		if (len(fields) > 1 && strings.HasPrefix(fields[1], "(")) || (len(fields) > 2 && strings.HasPrefix(fields[2], "(")) {
			t.Indexes = append(t.Indexes, Index{Name: namedKey(fields), Columns: parseColumnList(tail(def))})
			return
		}
	case "FOREIGN", "CHECK", "EXCLUDE", "FULLTEXT", "SPATIAL":
		return
	}

	c := Column{Name: unquote(fields[0]), Nullable: true}
	var typ []string
	i := 1
	for ; i < len(fields); i++ {
		if columnKeywords[strings.ToUpper(fields[i])] {
			break
		}
		typ = append(typ, fields[i])
	}
	c.Type = strings.Join(typ, " ")

	for ; i < len(fields); i++ {
		switch strings.ToUpper(fields[i]) {
		case "NOT":
			if i+1 < len(fields) && strings.EqualFold(fields[i+1], "NULL") {
				c.Nullable = false
				i++
			}
		case "PRIMARY":
			c.Nullable = false
			t.PrimaryKey = []string{c.Name}
		case "UNIQUE":
			t.Indexes = append(t.Indexes, Index{Unique: true, Columns: []string{c.Name}})
		case "DEFAULT", "REFERENCES", "CHECK", "COLLATE", "COMMENT":
			i++
		}
	}

	t.Columns = append(t.Columns, c)
}

// settlePrimaryKey marks primary key columns as not nullable
func (t *Table) settlePrimaryKey() {
	for _, pk := range t.PrimaryKey {
		for i := range t.Columns {
			if strings.EqualFold(t.Columns[i].Name, pk) {
				t.Columns[i].Nullable = false
			}
		}
	}
}

// namedKey returns the name in "KEY name (...)" or "UNIQUE KEY name (...)"
func namedKey(fields []string) string {
	for i, f := range fields {
		u := strings.ToUpper(f)
		if u == "KEY" || u == "INDEX" {
			if i+1 < len(fields) && !strings.HasPrefix(fields[i+1], "(") {
				return unquote(fields[i+1])
			}
			return ""
		}
	}
	return ""
}

// tail returns the content of the first parenthesised group
func tail(def string) string {
	open := strings.Index(def, "(")
	if open < 0 {
		return ""
	}
	body, _ := enclosed(def[open:])
	return body
}

func parseColumnList(list string) []string {
	var cols []string
	for _, part := range splitTopLevel(list, ',') {
		fields := fieldsTopLevel(part)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if i := strings.Index(name, "("); i > 0 {
			name = name[:i]
		}
		cols = append(cols, unquote(name))
	}
	return cols
}

// enclosed returns the content between the opening parenthesis at s[0]
// and its matching closing one
func enclosed(s string) (string, bool) {
	depth := 0
	var quote rune
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth == 0 {
				return s[1:i], true
			}
		}
	}
	return "", false
}

// SplitStatements splits a script on semicolons outside of quotes,
// parentheses and comments
func SplitStatements(script string) []string {
	var stmts []string
	var cur strings.Builder
	var quote rune
	depth := 0

	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			stmts = append(stmts, stmt)
		}
		cur.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune(' ')
			continue
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			cur.WriteRune(' ')
			continue
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ';' && depth <= 0:
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()

	return stmts
}

func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var quote rune
	depth, start := 0, 0
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// fieldsTopLevel splits on whitespace outside of parentheses and quotes,
// whitespace inside parentheses is dropped
func fieldsTopLevel(s string) []string {
	var fields []string
	var cur strings.Builder
	var quote rune
	depth := 0

	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}

	for _, r := range strings.TrimSpace(s) {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		case depth == 0 && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
			continue
		case depth > 0 && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			continue
		}
		cur.WriteRune(r)
	}
	flush()

	return fields
}

func unquote(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "."); i >= 0 && !strings.ContainsAny(name[i:], "\"`]") {
		name = name[i+1:]
	}
	return strings.Trim(name, "\"`[]")
}
