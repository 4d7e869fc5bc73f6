package ddl

// ColumnDef describes a single column of a table definition.
//
// Name is unquoted; quoting happens at render time. Default is a raw SQL
// expression (e.g. CURRENT_TIMESTAMP) emitted verbatim.
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the table name in dotted form ("schema.table") and its
// ordered columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Column returns the column called name, if present.
func (t TableDef) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}
