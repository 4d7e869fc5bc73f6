// Package sqlite implements a SQLite-backed storage.Repository on the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"strings"

	_ "modernc.org/sqlite"

	"usermover/internal/sqlgen"
	"usermover/internal/storage"
	"usermover/internal/storage/sqldb"
)

// Repository is a SQLite-backed storage.Repository.
type Repository struct {
	*sqldb.Repository
}

// NewRepository opens the database named by cfg.DSN, e.g.
//
//	"file:users.db?_pragma=busy_timeout(5000)"
//	":memory:"
//
// and returns the Repository plus a close function.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, func(), error) {
	base, err := sqldb.Open(ctx, "sqlite", cfg.DSN, sqlgen.SQLite{}, cfg)
	if err != nil {
		return nil, nil, err
	}
	db := base.DB()

	// Every connection to an in-memory database sees its own empty database,
	// and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	if inMemory(cfg.DSN) {
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;")

	closeFn := func() { _ = db.Close() }
	return &Repository{Repository: base}, closeFn, nil
}

func inMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}
