// Package ddl models the tables the mover reads and writes and renders
// CREATE TABLE statements for them in each supported dialect.
package ddl

import (
	"fmt"
	"strings"

	"usermover/internal/sqlgen"
)

// BuildCreateTableSQL renders an idempotent CREATE TABLE for t in dialect d.
//
// Postgres, MySQL, SQLite and DuckDB use CREATE TABLE IF NOT EXISTS. SQL
// Server has no such form, so the statement is wrapped in an
// IF OBJECT_ID(...) IS NULL guard. Primary key columns are always NOT NULL.
func BuildCreateTableSQL(d sqlgen.Dialect, t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, 1)
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(d.QuoteIdent(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, d.QuoteIdent(name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	table := d.QuoteIdent(fqn)
	if _, ok := d.(sqlgen.MSSQL); ok {
		return fmt.Sprintf(
			"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
			strings.ReplaceAll(table, "'", "''"),
			table,
			strings.Join(cols, ",\n    "),
		), nil
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		table,
		strings.Join(cols, ",\n  "),
	), nil
}
