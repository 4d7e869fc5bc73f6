// Package postgres implements a Postgres-backed storage.Repository on pgx v5.
// Statements run through a pgxpool; aggregated loads use COPY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"usermover/internal/model"
	"usermover/internal/sqlgen"
	"usermover/internal/statement"
	"usermover/internal/storage"
	"usermover/internal/storage/sqldb"
)

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  storage.Config
	d    sqlgen.Postgres
	log  *zap.SugaredLogger
}

// NewRepository constructs a Repository and returns a close function.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, func(), error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg, log: zap.S().Named("postgres")}, closeFn, nil
}

// pgErr adds the server detail and SQLSTATE to err when it carries them.
func pgErr(op string, err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		if pe.Detail != "" {
			return fmt.Errorf("%s: %s: %s (%s): %w", op, pe.Message, pe.Detail, pe.SQLState(), err)
		}
		return fmt.Errorf("%s: %s (%s): %w", op, pe.Message, pe.SQLState(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Users implements storage.Repository.
func (r *Repository) Users(ctx context.Context, q storage.UserQuery) ([]model.User, []storage.Skip, error) {
	query, args, err := sqldb.UsersSelect(r.d, q).ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: build users query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, pgErr("postgres: query users", err)
	}
	defer rows.Close()

	var raw []model.UserRow
	for rows.Next() {
		var (
			name, cgs, serials *string
			mid                *int64
		)
		if err := rows.Scan(&name, &cgs, &serials, &mid); err != nil {
			return nil, nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		row := model.UserRow{Name: derefStr(name), CGList: derefStr(cgs), SerialList: derefStr(serials), NullMid: mid == nil}
		if mid != nil {
			row.Mid = *mid
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, pgErr("postgres: read users", err)
	}
	users, skips := sqldb.DecodeUsers(r.log, raw)
	return users, skips, nil
}

// Stores implements storage.Repository.
func (r *Repository) Stores(ctx context.Context, q storage.StoreQuery) ([]model.Store, error) {
	query, args, err := sqldb.StoresSelect(r.d, q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build stores query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgErr("postgres: query stores", err)
	}
	defer rows.Close()

	var out []model.Store
	for rows.Next() {
		var cg, serial, mid *int64
		if err := rows.Scan(&cg, &serial, &mid); err != nil {
			return nil, fmt.Errorf("postgres: scan store: %w", err)
		}
		s, err := sqldb.StoreFromRow(cg, serial, mid)
		if err != nil {
			r.log.Warnw("store skipped", "error", err)
			continue
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, pgErr("postgres: read stores", err)
	}
	return out, nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Execute implements storage.Repository. A statement above the parameter
// limit runs as several chunks inside one transaction.
func (r *Repository) Execute(ctx context.Context, st *statement.Staged) (storage.Outcome, error) {
	queries, err := sqlgen.RenderChunks(st, r.d)
	if errors.Is(err, sqlgen.ErrEmptyStatement) {
		return storage.Outcome{}, nil
	}
	if err != nil {
		return storage.Outcome{}, fmt.Errorf("postgres: render: %w", err)
	}

	var (
		ex  pgExecer = r.pool
		tx  pgx.Tx
		out storage.Outcome
	)
	if len(queries) > 1 {
		if tx, err = r.pool.Begin(ctx); err != nil {
			return out, pgErr("postgres: begin", err)
		}
		ex = tx
	}
	for i, q := range queries {
		out.SQL = q.SQL
		out.Args += len(q.Args)
		out.Chunks++
		tag, err := ex.Exec(ctx, q.SQL, q.Args...)
		if err != nil {
			if tx != nil {
				_ = tx.Rollback(ctx)
			}
			return out, pgErr(fmt.Sprintf("postgres: execute chunk %d/%d", i+1, len(queries)), err)
		}
		out.RowsAffected += tag.RowsAffected()
	}
	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			return out, pgErr("postgres: commit", err)
		}
	}
	return out, nil
}

// CopyFrom streams rows into the configured table with COPY.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, splitFQN(r.cfg.Table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, pgErr("postgres: copy", err)
	}
	return n, nil
}

// MaxMid implements storage.Repository.
func (r *Repository) MaxMid(ctx context.Context, table, column string) (int64, error) {
	query, args, err := sqldb.MaxMidSelect(r.d, table, column).ToSql()
	if err != nil {
		return 0, err
	}
	var maxMid int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&maxMid); err != nil {
		return 0, pgErr("postgres: max("+column+")", err)
	}
	return maxMid, nil
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return pgErr("postgres: exec", err)
	}
	return nil
}

// Close releases the pool.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			id = append(id, p)
		}
	}
	return id
}
