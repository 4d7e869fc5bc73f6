package ddl

import (
	"fmt"
	"strings"

	"usermover/internal/sqlgen"
)

// dialectTypes holds the column types a dialect uses for the legacy tables.
type dialectTypes struct {
	bigint    string
	text      string
	timestamp string
	now       string
}

func typesFor(d sqlgen.Dialect) dialectTypes {
	switch d.(type) {
	case sqlgen.Postgres:
		return dialectTypes{"BIGINT", "TEXT", "TIMESTAMPTZ", "CURRENT_TIMESTAMP"}
	case sqlgen.MySQL:
		return dialectTypes{"BIGINT", "VARCHAR(1024)", "TIMESTAMP", "CURRENT_TIMESTAMP"}
	case sqlgen.MSSQL:
		return dialectTypes{"BIGINT", "NVARCHAR(1024)", "DATETIME2", "SYSUTCDATETIME()"}
	case sqlgen.DuckDB:
		return dialectTypes{"BIGINT", "VARCHAR", "TIMESTAMP", "current_timestamp"}
	default:
		return dialectTypes{"INTEGER", "TEXT", "TIMESTAMP", "CURRENT_TIMESTAMP"}
	}
}

// StoreUserTable returns the definition of the user/store join table: the
// three projected columns (surrogate key first) plus a database-maintained
// timestamp column when timestampCol is set.
func StoreUserTable(d sqlgen.Dialect, fqn string, cols []string, timestampCol string) (TableDef, error) {
	if len(cols) != 3 {
		return TableDef{}, fmt.Errorf("ddl: %s needs 3 columns, got %d", fqn, len(cols))
	}
	ty := typesFor(d)
	td := TableDef{FQN: fqn}
	for i, c := range cols {
		td.Columns = append(td.Columns, ColumnDef{Name: c, SQLType: ty.bigint, PrimaryKey: i == 0})
	}
	if ts := strings.TrimSpace(timestampCol); ts != "" {
		td.Columns = append(td.Columns, ColumnDef{Name: ts, SQLType: ty.timestamp, Nullable: true, Default: ty.now})
	}
	return td, nil
}

// UsersTable returns the definition of the legacy user table read by the
// mover.
func UsersTable(d sqlgen.Dialect, fqn string) TableDef {
	ty := typesFor(d)
	return TableDef{
		FQN: fqn,
		Columns: []ColumnDef{
			{Name: "username", SQLType: ty.text, Nullable: true},
			{Name: "user_cg", SQLType: ty.text, Nullable: true},
			{Name: "user_store_sn", SQLType: ty.text, Nullable: true},
			{Name: "mid", SQLType: ty.bigint, PrimaryKey: true},
			{Name: "time_stamp", SQLType: ty.timestamp, Nullable: true, Default: ty.now},
		},
	}
}

// StoresTable returns the definition of the legacy store table.
func StoresTable(d sqlgen.Dialect, fqn string) TableDef {
	ty := typesFor(d)
	return TableDef{
		FQN: fqn,
		Columns: []ColumnDef{
			{Name: "cg", SQLType: ty.bigint},
			{Name: "serial_number", SQLType: ty.bigint},
			{Name: "mid", SQLType: ty.bigint, PrimaryKey: true},
		},
	}
}
