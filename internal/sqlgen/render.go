package sqlgen

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"usermover/internal/statement"
)

// ErrEmptyStatement is returned for a statement with no value rows. Callers
// skip such statements instead of executing them.
var ErrEmptyStatement = errors.New("sqlgen: statement has no rows")

// Query is one rendered statement.
type Query struct {
	SQL  string
	Args []any
	Rows int
}

// MaxRows returns how many rows of st fit in one statement for d, or 0 when
// d sets no limit.
func MaxRows(d Dialect, st *statement.Staged) int {
	l, ok := d.(limiter)
	if !ok || st == nil {
		return 0
	}
	cols := len(st.Columns())
	if cols == 0 {
		return 0
	}
	n := 0
	if p := l.maxParams(); p > 0 {
		n = max(p/cols, 1)
	}
	_, ignore := st.Table()
	if r := l.maxInsertRows(ignore, len(st.Updates()) > 0); r > 0 && (n == 0 || r < n) {
		n = r
	}
	return n
}

// RenderChunks renders st as one or more statements, each within d's
// parameter and row limits. Rows keep their order across chunks.
func RenderChunks(st *statement.Staged, d Dialect) ([]Query, error) {
	if st == nil {
		return nil, ErrEmptyStatement
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if st.RowCount() == 0 {
		return nil, ErrEmptyStatement
	}
	parts := st.Split(MaxRows(d, st))
	out := make([]Query, 0, len(parts))
	for i, part := range parts {
		sqlText, args, err := Render(part, d)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(parts), err)
		}
		out = append(out, Query{SQL: sqlText, Args: args, Rows: part.RowCount()})
	}
	return out, nil
}

// Render turns st into SQL text and positional arguments for d. It does not
// split; see RenderChunks.
func Render(st *statement.Staged, d Dialect) (string, []any, error) {
	if st == nil {
		return "", nil, ErrEmptyStatement
	}
	if err := st.Validate(); err != nil {
		return "", nil, err
	}
	if st.RowCount() == 0 {
		return "", nil, ErrEmptyStatement
	}

	table, ignore := st.Table()
	var updates []string
	for _, a := range st.Updates() {
		if a.Column != a.Source {
			return "", nil, fmt.Errorf("sqlgen: %s cannot assign %s from %s", d.Name(), a.Column, a.Source)
		}
		updates = append(updates, a.Column)
	}

	if m, ok := d.(MSSQL); ok && (ignore || len(updates) > 0) {
		return m.merge(st, table, updates, ignore)
	}

	cols := make([]string, len(st.Columns()))
	for i, c := range st.Columns() {
		cols[i] = d.QuoteIdent(c)
	}
	ib := sq.Insert(d.QuoteIdent(table)).
		Columns(cols...).
		PlaceholderFormat(d.PlaceholderFormat())
	for _, row := range st.Rows() {
		ib = ib.Values(row...)
	}

	if u, ok := d.(upserter); ok {
		if ignore && u.ignoreOption() != "" {
			ib = ib.Options(u.ignoreOption())
		}
		if ignore || len(updates) > 0 {
			if sfx := u.conflictSuffix(st.KeyColumns, updates, ignore); sfx != "" {
				ib = ib.Suffix(sfx)
			}
		}
	}
	return ib.ToSql()
}

// merge renders a SQL Server MERGE keyed on st.KeyColumns:
//
//	MERGE INTO t AS T USING (VALUES (...), ...) AS S (cols) ON T.k = S.k
//	WHEN MATCHED THEN UPDATE SET ... WHEN NOT MATCHED THEN INSERT ...;
func (m MSSQL) merge(st *statement.Staged, table string, updates []string, ignore bool) (string, []any, error) {
	keys := st.KeyColumns
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("sqlgen: %s upsert needs key columns", m.Name())
	}
	cols := bracket.list(st.Columns())

	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("MERGE INTO ")
	b.WriteString(m.QuoteIdent(table))
	b.WriteString(" WITH (HOLDLOCK) AS T USING (VALUES ")
	for i, row := range st.Rows() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(" + sq.Placeholders(len(row)) + ")")
		args = append(args, row...)
	}
	b.WriteString(") AS S (" + strings.Join(cols, ", ") + ") ON ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		qk := bracket.ident(k)
		b.WriteString("T." + qk + " = S." + qk)
	}

	if !ignore {
		var sets []string
		for _, c := range updates {
			if containsFold(keys, c) {
				continue
			}
			qc := bracket.ident(c)
			sets = append(sets, "T."+qc+" = S."+qc)
		}
		if len(sets) > 0 {
			b.WriteString(" WHEN MATCHED THEN UPDATE SET " + strings.Join(sets, ", "))
		}
	}

	src := make([]string, len(cols))
	for i, c := range cols {
		src[i] = "S." + c
	}
	b.WriteString(" WHEN NOT MATCHED THEN INSERT (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(src, ", ") + ");")

	sql, err := sq.AtP.ReplacePlaceholders(b.String())
	if err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
