// Package sqlgen renders staged statements into dialect-specific SQL.
package sqlgen

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect abstracts the database-specific parts of an insert-or-update.
type Dialect interface {
	Name() string
	PlaceholderFormat() sq.PlaceholderFormat
	// QuoteIdent quotes a possibly schema-qualified identifier.
	QuoteIdent(name string) string
}

// upserter is implemented by dialects whose conflict handling fits in an
// INSERT prefix option and suffix clause.
type upserter interface {
	ignoreOption() string
	// conflictSuffix returns the clause appended after VALUES. updates is nil
	// for ignore-on-conflict.
	conflictSuffix(keys, updates []string, ignore bool) string
}

// limiter is implemented by dialects that cap the size of one statement.
type limiter interface {
	// maxParams is the largest number of bound parameters per statement.
	maxParams() int
	// maxInsertRows caps the row constructors of the statement rendered for
	// the given conflict handling; 0 means no cap.
	maxInsertRows(ignore, update bool) int
}

// MaxParams returns the bound-parameter limit of d, or 0 when it has none.
func MaxParams(d Dialect) int {
	if l, ok := d.(limiter); ok {
		return l.maxParams()
	}
	return 0
}

type quoter struct{ open, close string }

func (q quoter) part(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	if strings.HasPrefix(p, q.open) && strings.HasSuffix(p, q.close) {
		return p
	}
	return q.open + strings.ReplaceAll(p, q.close, q.close+q.close) + q.close
}

func (q quoter) ident(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q.part(p)
	}
	return strings.Join(parts, ".")
}

func (q quoter) list(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = q.ident(c)
	}
	return out
}

var (
	doubleQuote = quoter{`"`, `"`}
	backtick    = quoter{"`", "`"}
	bracket     = quoter{"[", "]"}
)

// onConflict renders ON CONFLICT ... for Postgres-style dialects. prefix is
// the pseudo-table holding the incoming row ("EXCLUDED" or "excluded"). Key
// columns are left out of the SET list.
func onConflict(q quoter, keys, updates []string, ignore bool, prefix string) string {
	target := ""
	if len(keys) > 0 {
		target = "(" + strings.Join(q.list(keys), ", ") + ") "
	}
	var sets []string
	for _, c := range updates {
		if containsFold(keys, c) {
			continue
		}
		qc := q.ident(c)
		sets = append(sets, fmt.Sprintf("%s = %s.%s", qc, prefix, qc))
	}
	if ignore || len(sets) == 0 {
		return "ON CONFLICT " + target + "DO NOTHING"
	}
	return "ON CONFLICT " + target + "DO UPDATE SET " + strings.Join(sets, ", ")
}

// MySQL is MySQL / MariaDB.
type MySQL struct{}

func (MySQL) Name() string                            { return "mysql" }
func (MySQL) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }
func (MySQL) QuoteIdent(name string) string           { return backtick.ident(name) }
func (MySQL) ignoreOption() string                    { return "IGNORE" }
func (MySQL) maxParams() int                          { return 65535 }
func (MySQL) maxInsertRows(_, _ bool) int             { return 0 }

// MySQL picks the conflicting key itself, so keys are not rendered.
func (MySQL) conflictSuffix(_, updates []string, ignore bool) string {
	if ignore || len(updates) == 0 {
		return ""
	}
	sets := make([]string, len(updates))
	for i, c := range updates {
		qc := backtick.ident(c)
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", qc, qc)
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// Postgres is PostgreSQL.
type Postgres struct{}

func (Postgres) Name() string                            { return "postgres" }
func (Postgres) PlaceholderFormat() sq.PlaceholderFormat { return sq.Dollar }
func (Postgres) QuoteIdent(name string) string           { return doubleQuote.ident(name) }
func (Postgres) ignoreOption() string                    { return "" }
func (Postgres) maxParams() int                          { return 65535 }
func (Postgres) maxInsertRows(_, _ bool) int             { return 0 }
func (Postgres) conflictSuffix(keys, updates []string, ignore bool) string {
	return onConflict(doubleQuote, keys, updates, ignore, "EXCLUDED")
}

// DuckDB accepts the Postgres upsert syntax with ? placeholders.
type DuckDB struct{}

func (DuckDB) Name() string                            { return "duckdb" }
func (DuckDB) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }
func (DuckDB) QuoteIdent(name string) string           { return doubleQuote.ident(name) }
func (DuckDB) ignoreOption() string                    { return "" }
func (DuckDB) conflictSuffix(keys, updates []string, ignore bool) string {
	return onConflict(doubleQuote, keys, updates, ignore, "EXCLUDED")
}

// SQLite is SQLite 3.24+.
type SQLite struct{}

func (SQLite) Name() string                            { return "sqlite" }
func (SQLite) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }
func (SQLite) QuoteIdent(name string) string           { return doubleQuote.ident(name) }
func (SQLite) ignoreOption() string                    { return "OR IGNORE" }
func (SQLite) maxParams() int                          { return 32766 }
func (SQLite) maxInsertRows(_, _ bool) int             { return 0 }
func (SQLite) conflictSuffix(keys, updates []string, ignore bool) string {
	if ignore {
		return ""
	}
	return onConflict(doubleQuote, keys, updates, false, "excluded")
}

// MSSQL is SQL Server. Conflict handling renders as MERGE.
type MSSQL struct{}

func (MSSQL) Name() string                            { return "mssql" }
func (MSSQL) PlaceholderFormat() sq.PlaceholderFormat { return sq.AtP }
func (MSSQL) QuoteIdent(name string) string           { return bracket.ident(name) }

// SQL Server rejects a request carrying 2100 parameters.
func (MSSQL) maxParams() int { return 2099 }

// A plain INSERT ... VALUES takes at most 1000 row constructors; the MERGE
// source table is not capped.
func (MSSQL) maxInsertRows(ignore, update bool) int {
	if ignore || update {
		return 0
	}
	return 1000
}

// ForKind returns the dialect of a storage kind.
func ForKind(kind string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "mysql", "mariadb":
		return MySQL{}, nil
	case "postgres", "postgresql", "pg":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "mssql", "sqlserver":
		return MSSQL{}, nil
	case "duckdb":
		return DuckDB{}, nil
	}
	return nil, fmt.Errorf("sqlgen: no dialect for kind %q", kind)
}
