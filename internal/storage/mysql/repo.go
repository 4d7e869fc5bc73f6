// Package mysql implements a MySQL/MariaDB-backed storage.Repository using
// github.com/go-sql-driver/mysql.
package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"usermover/internal/sqlgen"
	"usermover/internal/storage"
	"usermover/internal/storage/sqldb"
)

// Repository is a MySQL-backed storage.Repository.
type Repository struct {
	*sqldb.Repository
}

// NormalizeDSN parses dsn, enables time.Time scanning and pins the session
// time zone to UTC unless the DSN sets one.
func NormalizeDSN(dsn string) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql dsn: %w", err)
	}
	c.ParseTime = true
	c.MultiStatements = false
	if c.Params == nil {
		c.Params = map[string]string{}
	}
	if _, ok := c.Params["time_zone"]; !ok {
		c.Params["time_zone"] = "'+00:00'"
	}
	return c.FormatDSN(), nil
}

// NewRepository opens the pool and returns the Repository plus a close
// function.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, func(), error) {
	dsn, err := NormalizeDSN(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	base, err := sqldb.Open(ctx, "mysql", dsn, sqlgen.MySQL{}, cfg)
	if err != nil {
		return nil, nil, err
	}
	base.WrapErr = wrapErr
	closeFn := func() { _ = base.DB().Close() }
	return &Repository{Repository: base}, closeFn, nil
}

// wrapErr surfaces the server error number, which is what operators search
// for (1062 duplicate key, 1146 missing table).
func wrapErr(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return fmt.Errorf("mysql error %d: %s: %w", me.Number, me.Message, err)
	}
	return err
}
