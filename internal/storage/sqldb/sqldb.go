// Package sqldb implements storage.Repository on top of database/sql. The
// MySQL, SQLite, SQL Server and DuckDB backends embed it and override only
// what their driver does better (bulk copy, error detail).
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"usermover/internal/model"
	"usermover/internal/sqlgen"
	"usermover/internal/statement"
	"usermover/internal/storage"
)

// Repository is a database/sql-backed storage.Repository.
type Repository struct {
	db  *sql.DB
	d   sqlgen.Dialect
	cfg storage.Config
	log *zap.SugaredLogger

	// WrapErr, when set, decorates driver errors returned by Execute and
	// CopyFrom.
	WrapErr func(error) error
}

// Open opens driver with dsn and pings it with a short timeout so invalid
// DSNs fail fast.
func Open(ctx context.Context, driver, dsn string, d sqlgen.Dialect, cfg storage.Config) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", d.Name())
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Name(), err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name(), err)
	}
	return New(db, d, cfg), nil
}

// New wraps an open *sql.DB.
func New(db *sql.DB, d sqlgen.Dialect, cfg storage.Config) *Repository {
	return &Repository{
		db:  db,
		d:   d,
		cfg: cfg,
		log: zap.S().Named(d.Name()),
	}
}

var _ storage.Repository = (*Repository)(nil)

// DB returns the underlying handle.
func (r *Repository) DB() *sql.DB { return r.db }

// Dialect returns the dialect statements are rendered in.
func (r *Repository) Dialect() sqlgen.Dialect { return r.d }

// Config returns the storage config the repository was opened with.
func (r *Repository) Config() storage.Config { return r.cfg }

func (r *Repository) wrap(err error) error {
	if err != nil && r.WrapErr != nil {
		return r.WrapErr(err)
	}
	return err
}

// UsersSelect builds the user-row query for q in dialect d.
func UsersSelect(d sqlgen.Dialect, q storage.UserQuery) sq.SelectBuilder {
	return sq.Select(
		d.QuoteIdent("username"),
		d.QuoteIdent("user_cg"),
		d.QuoteIdent("user_store_sn"),
		d.QuoteIdent("mid"),
	).
		From(d.QuoteIdent(q.Table)).
		Where(sq.GtOrEq{d.QuoteIdent("time_stamp"): q.Since}).
		OrderBy(d.QuoteIdent("mid")).
		PlaceholderFormat(d.PlaceholderFormat())
}

// StoresSelect builds the store catalog query for q in dialect d.
func StoresSelect(d sqlgen.Dialect, q storage.StoreQuery) sq.SelectBuilder {
	return sq.Select(
		d.QuoteIdent("cg"),
		d.QuoteIdent("serial_number"),
		d.QuoteIdent("mid"),
	).
		From(d.QuoteIdent(q.Table)).
		Where(sq.Gt{d.QuoteIdent("mid"): q.MinMid}).
		OrderBy(d.QuoteIdent("mid")).
		PlaceholderFormat(d.PlaceholderFormat())
}

// MaxMidSelect builds SELECT COALESCE(MAX(column), 0) FROM table.
func MaxMidSelect(d sqlgen.Dialect, table, column string) sq.SelectBuilder {
	return sq.Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", d.QuoteIdent(column))).
		From(d.QuoteIdent(table)).
		PlaceholderFormat(d.PlaceholderFormat())
}

// DecodeUsers turns raw rows into users and skips, logging each skip.
func DecodeUsers(log *zap.SugaredLogger, rows []model.UserRow) ([]model.User, []storage.Skip) {
	users := make([]model.User, 0, len(rows))
	var skips []storage.Skip
	for _, row := range rows {
		u, skip, ok := row.Decode()
		if !ok {
			log.Debugw("user row skipped", "username", skip.Name, "mid", row.Mid, "reason", skip.Reason)
			skips = append(skips, skip)
			continue
		}
		if bad := row.MalformedTokens(); len(bad) > 0 {
			log.Debugw("malformed list tokens dropped", "username", row.Name, "tokens", bad)
		}
		users = append(users, u)
	}
	return users, skips
}

// StoreFromRow converts scanned catalog values. It rejects NULL fields and
// values that do not fit the int32 catalog fields.
func StoreFromRow(cg, serial, mid *int64) (model.Store, error) {
	switch {
	case mid == nil:
		return model.Store{}, errors.New("store with NULL mid")
	case cg == nil:
		return model.Store{}, fmt.Errorf("store mid=%d: cg is NULL", *mid)
	case serial == nil:
		return model.Store{}, fmt.Errorf("store mid=%d: serial_number is NULL", *mid)
	}
	if *cg < math.MinInt32 || *cg > math.MaxInt32 || *serial < math.MinInt32 || *serial > math.MaxInt32 {
		return model.Store{}, fmt.Errorf("store mid=%d: cg=%d serial_number=%d out of range", *mid, *cg, *serial)
	}
	return model.Store{Mid: *mid, CG: int32(*cg), SerialNumber: int32(*serial)}, nil
}

func nullable(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

// Users implements storage.Repository.
func (r *Repository) Users(ctx context.Context, q storage.UserQuery) ([]model.User, []storage.Skip, error) {
	query, args, err := UsersSelect(r.d, q).ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: build users query: %w", r.d.Name(), err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: query users: %w", r.d.Name(), err)
	}
	defer rows.Close()

	var raw []model.UserRow
	for rows.Next() {
		var (
			name, cgs, serials sql.NullString
			mid                sql.NullInt64
		)
		if err := rows.Scan(&name, &cgs, &serials, &mid); err != nil {
			return nil, nil, fmt.Errorf("%s: scan user: %w", r.d.Name(), err)
		}
		raw = append(raw, model.UserRow{
			Name:       name.String,
			CGList:     cgs.String,
			SerialList: serials.String,
			Mid:        mid.Int64,
			NullMid:    !mid.Valid,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%s: read users: %w", r.d.Name(), err)
	}
	users, skips := DecodeUsers(r.log, raw)
	return users, skips, nil
}

// Stores implements storage.Repository.
func (r *Repository) Stores(ctx context.Context, q storage.StoreQuery) ([]model.Store, error) {
	query, args, err := StoresSelect(r.d, q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build stores query: %w", r.d.Name(), err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query stores: %w", r.d.Name(), err)
	}
	defer rows.Close()

	var out []model.Store
	for rows.Next() {
		var cg, serial, mid sql.NullInt64
		if err := rows.Scan(&cg, &serial, &mid); err != nil {
			return nil, fmt.Errorf("%s: scan store: %w", r.d.Name(), err)
		}
		s, err := StoreFromRow(nullable(cg), nullable(serial), nullable(mid))
		if err != nil {
			r.log.Warnw("store skipped", "error", err)
			continue
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: read stores: %w", r.d.Name(), err)
	}
	return out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Execute implements storage.Repository. A statement too large for the
// dialect runs as several chunks inside one transaction.
func (r *Repository) Execute(ctx context.Context, st *statement.Staged) (storage.Outcome, error) {
	queries, err := sqlgen.RenderChunks(st, r.d)
	if errors.Is(err, sqlgen.ErrEmptyStatement) {
		return storage.Outcome{}, nil
	}
	if err != nil {
		return storage.Outcome{}, fmt.Errorf("%s: render: %w", r.d.Name(), err)
	}

	var (
		ex  execer = r.db
		tx  *sql.Tx
		out storage.Outcome
	)
	if len(queries) > 1 {
		if tx, err = r.db.BeginTx(ctx, nil); err != nil {
			return out, fmt.Errorf("%s: begin tx: %w", r.d.Name(), err)
		}
		ex = tx
	}
	for i, q := range queries {
		out.SQL = q.SQL
		out.Args += len(q.Args)
		out.Chunks++
		res, err := ex.ExecContext(ctx, q.SQL, q.Args...)
		if err != nil {
			if tx != nil {
				_ = tx.Rollback()
			}
			return out, fmt.Errorf("%s: execute chunk %d/%d: %w", r.d.Name(), i+1, len(queries), r.wrap(err))
		}
		if n, err := res.RowsAffected(); err == nil {
			out.RowsAffected += n
		}
	}
	if tx != nil {
		if err := tx.Commit(); err != nil {
			return out, fmt.Errorf("%s: commit: %w", r.d.Name(), err)
		}
	}
	return out, nil
}

// CopyFrom inserts rows into the configured table inside one transaction with
// a prepared single-row INSERT.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("%s: CopyFrom: columns must not be empty", r.d.Name())
	}
	if len(rows) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = r.d.QuoteIdent(c)
	}
	placeholders := make([]any, len(columns))
	for i := range placeholders {
		placeholders[i] = sq.Expr("?")
	}
	stmtSQL, _, err := sq.Insert(r.d.QuoteIdent(r.cfg.Table)).
		Columns(quoted...).
		Values(placeholders...).
		PlaceholderFormat(r.d.PlaceholderFormat()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: build insert: %w", r.d.Name(), err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin tx: %w", r.d.Name(), err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("%s: prepare insert: %w", r.d.Name(), err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("%s: CopyFrom: row length %d != columns length %d", r.d.Name(), len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("%s: insert: %w", r.d.Name(), r.wrap(err))
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", r.d.Name(), err)
	}
	return inserted, nil
}

// MaxMid implements storage.Repository.
func (r *Repository) MaxMid(ctx context.Context, table, column string) (int64, error) {
	query, args, err := MaxMidSelect(r.d, table, column).ToSql()
	if err != nil {
		return 0, err
	}
	var maxMid sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&maxMid); err != nil {
		return 0, fmt.Errorf("%s: max(%s): %w", r.d.Name(), column, err)
	}
	return maxMid.Int64, nil
}

// Exec implements storage.Repository.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("%s: exec: %w", r.d.Name(), err)
	}
	return nil
}

// Close implements storage.Repository.
func (r *Repository) Close() { _ = r.db.Close() }
