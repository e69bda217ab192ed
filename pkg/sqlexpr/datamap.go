package sqlexpr

import "strings"

// ColumnDef ties a physical column to its storage type and the logical field
// name used by queries and reconstitution.
type ColumnDef struct {
	Name  string
	Type  StorageType
	Field string
}

// DataMap is the declarative field/column metadata for one physical table.
// One instance exists per aggregate table; it is built once and never mutated,
// so it is safe to share across goroutines.
type DataMap struct {
	table    string
	alias    string
	cols     []ColumnDef
	byField  map[string]ColumnDef
	byColumn map[string]ColumnDef
}

// NewDataMap builds a DataMap with a generated table alias: the upper-cased
// first letter of each underscore-delimited word of the table name, so
// "notification_target" aliases to "NT".
func NewDataMap(table string, cols ...ColumnDef) *DataMap {
	return NewDataMapWithAlias(table, generateAlias(table), cols...)
}

func NewDataMapWithAlias(table, alias string, cols ...ColumnDef) *DataMap {
	m := &DataMap{
		table:    table,
		alias:    alias,
		cols:     cols,
		byField:  make(map[string]ColumnDef, len(cols)),
		byColumn: make(map[string]ColumnDef, len(cols)),
	}
	for _, c := range cols {
		m.byField[c.Field] = c
		m.byColumn[c.Name] = c
	}
	return m
}

func generateAlias(table string) string {
	var b strings.Builder
	for _, word := range strings.Split(table, "_") {
		if word == "" {
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
	}
	return b.String()
}

func (m *DataMap) Table() string { return m.table }
func (m *DataMap) Alias() string { return m.alias }

// ColumnFor resolves a logical field name to its physical column name.
func (m *DataMap) ColumnFor(field string) (string, bool) {
	c, ok := m.byField[field]
	return c.Name, ok
}

// FieldFor resolves a physical column name back to its logical field name.
func (m *DataMap) FieldFor(column string) (string, bool) {
	c, ok := m.byColumn[column]
	return c.Field, ok
}

// TypeFor reports the storage type of a physical column.
func (m *DataMap) TypeFor(column string) (StorageType, bool) {
	c, ok := m.byColumn[column]
	return c.Type, ok
}

// Columns returns the column names in declaration order.
func (m *DataMap) Columns() []string {
	names := make([]string, len(m.cols))
	for i, c := range m.cols {
		names[i] = c.Name
	}
	return names
}

// AliasedColumns returns the column names prefixed with "alias." in
// declaration order, for use in multi-table joins.
func (m *DataMap) AliasedColumns() []string {
	names := make([]string, len(m.cols))
	for i, c := range m.cols {
		names[i] = m.alias + "." + c.Name
	}
	return names
}

// ColumnString renders the declaration-order column list as SQL text.
func (m *DataMap) ColumnString() string {
	return strings.Join(m.Columns(), ", ")
}

// AliasedColumnString renders the alias-prefixed column list as SQL text.
func (m *DataMap) AliasedColumnString() string {
	return strings.Join(m.AliasedColumns(), ", ")
}

// AliasedTable renders "table alias" for FROM/JOIN clauses.
func (m *DataMap) AliasedTable() string {
	return m.table + " " + m.alias
}
