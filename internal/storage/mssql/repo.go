// Package mssql implements a SQL Server-backed storage.Repository using
// github.com/microsoft/go-mssqldb. Upserts render as MERGE; aggregated loads
// use the driver's bulk copy.
package mssql

import (
	"context"
	"errors"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"usermover/internal/sqlgen"
	"usermover/internal/storage"
	"usermover/internal/storage/sqldb"
)

// Repository is a SQL Server-backed storage.Repository.
type Repository struct {
	*sqldb.Repository
}

// NewRepository validates the DSN, opens the pool and returns the Repository
// plus a close function.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, func(), error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	base, err := sqldb.Open(ctx, "sqlserver", cfg.DSN, sqlgen.MSSQL{}, cfg)
	if err != nil {
		return nil, nil, err
	}
	base.WrapErr = wrapErr
	closeFn := func() { _ = base.DB().Close() }
	return &Repository{Repository: base}, closeFn, nil
}

// wrapErr surfaces the server error number and line.
func wrapErr(err error) error {
	var me mssql.Error
	if errors.As(err, &me) {
		return fmt.Errorf("mssql error %d (line %d): %s: %w", me.Number, me.LineNo, me.Message, err)
	}
	return err
}

// CopyFrom bulk-loads rows into the configured table with the driver's
// bulk copy inside one transaction.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.Config().Table, mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, wrapErr(err))
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("bulk finalize: %w", wrapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}
