package database

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cultivate/internal/schema"
)

// column is the storage form of one entity column.
type column struct {
	name    string
	sqlType string
	notNull bool
	// def is the rendered DEFAULT clause, "" when none.
	def string
	// extra holds CHECK and REFERENCES clauses.
	extra string
}

func (c column) definition() string {
	var b strings.Builder
	b.WriteString(quoteIdent(c.name))
	b.WriteString(" ")
	b.WriteString(c.sqlType)
	if c.notNull {
		b.WriteString(" NOT NULL")
	}
	if c.def != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.def)
	}
	if c.extra != "" {
		b.WriteString(" ")
		b.WriteString(c.extra)
	}
	return b.String()
}

// addable reports whether ALTER TABLE ADD COLUMN can add c to a populated table.
func (c column) addable() bool {
	return !c.notNull || c.def != ""
}

func sqlType(t schema.FieldType) string {
	switch t {
	case schema.TypeNumber:
		return "REAL"
	case schema.TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func sqlLiteral(v any) string {
	switch x := v.(type) {
	case string:
		return quoteString(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}

// entityColumns lists the table columns of an entity: id, declared fields,
// relation columns, then timestamps.
func entityColumns(d *schema.Descriptor, e *schema.EntityDescriptor) []column {
	cols := []column{{name: schema.ColumnID, sqlType: "INTEGER", extra: "PRIMARY KEY AUTOINCREMENT"}}

	for _, f := range e.Fields {
		c := column{name: f.Name, sqlType: sqlType(f.Type), notNull: f.Required}
		if f.HasDefault() {
			c.def = sqlLiteral(f.Default)
		}
		if f.Type == schema.TypeEnum {
			vals := make([]string, len(f.Values))
			for i, v := range f.Values {
				vals[i] = quoteString(v)
			}
			c.extra = fmt.Sprintf("CHECK (%s IN (%s))", quoteIdent(f.Name), strings.Join(vals, ", "))
		}
		cols = append(cols, c)
	}

	for _, r := range d.RelationsFrom(e.Name) {
		cols = append(cols, column{
			name:    r.Column,
			sqlType: "INTEGER",
			extra:   fmt.Sprintf("REFERENCES %s(%s)", quoteIdent(r.Parent), quoteIdent(schema.ColumnID)),
		})
	}

	if e.Timestamps != nil {
		cols = append(cols,
			column{name: schema.ColumnCreatedAt, sqlType: "DATETIME"},
			column{name: schema.ColumnUpdatedAt, sqlType: "DATETIME"},
		)
	}
	return cols
}

func createTableSQL(table string, cols []column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = c.definition()
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", quoteIdent(table), strings.Join(defs, ",\n  "))
}

func createIndexSQL(idx schema.IndexDescriptor) string {
	cols := make([]string, len(idx.Fields))
	for i, f := range idx.Fields {
		cols[i] = quoteIdent(f)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, quoteIdent(idx.Name), quoteIdent(idx.Entity), strings.Join(cols, ", "))
}

// SchemaSQL renders the DDL for every entity and index in d.
func SchemaSQL(d *schema.Descriptor) string {
	var b strings.Builder
	for i := range d.Entities {
		e := &d.Entities[i]
		b.WriteString(createTableSQL(e.Name, entityColumns(d, e)))
		b.WriteString(";\n\n")
	}
	for _, idx := range d.Indices {
		b.WriteString(createIndexSQL(idx))
		b.WriteString(";\n")
	}
	return b.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
